package handlers

import (
	"net/http"
	"time"

	"voltcare/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// GetTracking returns the current tracking record for a service.
func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	tracking, err := h.tracking.Current(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking)
}

// UpdateTracking applies a partner's location/status report. A status that
// would move backward yields 400 and leaves the record untouched.
func (h *Handler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CurrentLocation *domain.Location      `json:"currentLocation"`
		Status          domain.TrackingStatus `json:"status"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	tracking, err := h.tracking.PushUpdate(r.Context(), mux.Vars(r)["id"], input.CurrentLocation, input.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TrackingSocket streams tracking snapshots over a websocket every five
// seconds until the client disconnects or the tracking record is gone.
func (h *Handler) TrackingSocket(w http.ResponseWriter, r *http.Request) {
	serviceID := mux.Vars(r)["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", "serviceID", serviceID, "error", err)
		return
	}
	defer conn.Close()

	// Reads are discarded; the read loop only notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	send := func() bool {
		tracking, err := h.tracking.Current(r.Context(), serviceID)
		if err != nil {
			if !domain.IsNotFound(err) {
				h.logger.Error("Tracking snapshot failed", "serviceID", serviceID, "error", err)
			}
			return false
		}
		if err := conn.WriteJSON(tracking); err != nil {
			return false
		}
		return tracking.Status != domain.TrackingCompleted
	}

	if !send() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
