package handlers

import (
	"net/http"

	"voltcare/domain"

	"github.com/gorilla/mux"
)

// ListNotifications returns the caller's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	notifications, err := h.store.GetNotificationsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// CreateNotification delivers a notification. The target defaults to the
// caller when the body does not name one.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var input struct {
		UserID  string                  `json:"userId"`
		Title   string                  `json:"title"`
		Message string                  `json:"message"`
		Type    domain.NotificationType `json:"type"`
		Data    map[string]string       `json:"data"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	if input.Title == "" {
		h.writeError(w, domain.NewValidationError("title", "title is required"))
		return
	}
	if input.UserID == "" {
		input.UserID = callerID
	}
	if input.Type == "" {
		input.Type = domain.NotificationSystem
	}

	if err := h.notifier.Notify(r.Context(), input.UserID, input.Title, input.Message, input.Type, input.Data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// MarkNotificationRead flips a notification to read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.store.MarkNotificationRead(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
