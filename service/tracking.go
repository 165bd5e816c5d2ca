package service

import (
	"context"
	"log/slog"

	"voltcare/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TrackingFeed serves the live location/status stream for in-flight services.
// Status pushes are monotonic: on_way < arrived < working < completed, and a
// rejected push leaves the stored record untouched.
type TrackingFeed struct {
	store  domain.Store
	logger *slog.Logger
	tracer trace.Tracer
}

// NewTrackingFeed creates a TrackingFeed over the given store.
func NewTrackingFeed(store domain.Store, logger *slog.Logger) *TrackingFeed {
	return &TrackingFeed{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("voltcare"),
	}
}

// Current returns the service's current tracking record.
func (f *TrackingFeed) Current(ctx context.Context, serviceID string) (*domain.ServiceTracking, error) {
	ctx, span := f.tracer.Start(ctx, "GetCurrentTracking")
	defer span.End()
	span.SetAttributes(attribute.String("serviceID", serviceID))
	return f.store.GetServiceTracking(ctx, serviceID)
}

// PushUpdate applies a partner's location/status report. An empty status is a
// pure location refresh and never touches the stored status; a status that
// would move backward fails with InvalidTransitionError. Reaching "working"
// moves the owning service from assigned to in_progress.
func (f *TrackingFeed) PushUpdate(ctx context.Context, serviceID string, location *domain.Location, status domain.TrackingStatus) (*domain.ServiceTracking, error) {
	ctx, span := f.tracer.Start(ctx, "PushTrackingUpdate")
	defer span.End()
	span.SetAttributes(
		attribute.String("serviceID", serviceID),
		attribute.String("status", string(status)),
	)

	if status != "" && !domain.ValidTrackingStatus(status) {
		err := domain.NewValidationError("status", "unknown tracking status")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The guard runs inside the store's update closure so the regression
	// check and the write are one atomic step. Returning an error aborts
	// the write and leaves the stored record untouched.
	tracking, err := f.store.UpdateServiceTracking(ctx, serviceID, func(t *domain.ServiceTracking) error {
		if status != "" && domain.TrackingStatusBefore(status, t.Status) {
			return &domain.InvalidTransitionError{From: t.Status, To: status}
		}
		if status != "" {
			t.Status = status
		}
		if location != nil {
			t.CurrentLocation = location
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Tracking update failed")
		if domain.IsInvalidTransition(err) {
			f.logger.Warn("Rejected tracking regression", "serviceID", serviceID, "error", err)
		}
		return nil, err
	}

	if tracking.Status == domain.TrackingWorking {
		if _, err := f.store.UpdateService(ctx, serviceID, func(s *domain.Service) {
			if s.Status == domain.ServiceAssigned {
				s.Status = domain.ServiceInProgress
			}
		}); err != nil {
			f.logger.Error("Failed to move service in progress", "serviceID", serviceID, "error", err)
		}
	}

	f.logger.Info("Tracking updated",
		"serviceID", serviceID,
		"status", string(tracking.Status))
	return tracking, nil
}
