package service

import (
	"context"
	"log/slog"

	"voltcare/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Notifier is the inbound contract of the notification collaborator. The
// dispatch engine calls it synchronously but treats failures as non-fatal:
// a notification failure never rolls back the transition that triggered it.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string, typ domain.NotificationType, data map[string]string) error
}

// StoreNotifier persists notifications in the entity store, where clients
// poll them from their inbox.
type StoreNotifier struct {
	store  domain.Store
	logger *slog.Logger
}

// NewStoreNotifier creates a store-backed Notifier.
func NewStoreNotifier(store domain.Store, logger *slog.Logger) *StoreNotifier {
	return &StoreNotifier{store: store, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, userID, title, message string, typ domain.NotificationType, data map[string]string) error {
	ctx, span := otel.Tracer("voltcare").Start(ctx, "Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("userID", userID),
		attribute.String("type", string(typ)),
	)

	_, err := n.store.CreateNotification(ctx, &domain.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
		Data:    data,
	})
	if err != nil {
		n.logger.Error("Failed to create notification", "userID", userID, "error", err)
		return err
	}
	n.logger.Info("Notification created", "userID", userID, "title", title)
	return nil
}
