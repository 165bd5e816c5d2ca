package handlers

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"voltcare/domain"
	"voltcare/service"

	"github.com/gorilla/mux"
)

// Handler serves the REST surface. All routes live under /api except the
// health probe. The caller is identified by the X-User-Id header; real
// authentication sits in front of this service.
type Handler struct {
	store      domain.Store
	dispatcher *service.Dispatcher
	wallet     *service.WalletLedger
	tracking   *service.TrackingFeed
	notifier   service.Notifier
	logger     *slog.Logger
}

// NewHandler creates a Handler over the given collaborators.
func NewHandler(store domain.Store, dispatcher *service.Dispatcher, wallet *service.WalletLedger, tracking *service.TrackingFeed, notifier service.Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		dispatcher: dispatcher,
		wallet:     wallet,
		tracking:   tracking,
		notifier:   notifier,
		logger:     logger,
	}
}

// Register wires every route onto the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/users", h.CreateUser).Methods("POST")
	api.HandleFunc("/users/email/{email}", h.GetUserByEmail).Methods("GET")
	api.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	api.HandleFunc("/users/{id}", h.UpdateUser).Methods("PATCH")
	api.HandleFunc("/user/stats", h.CustomerStats).Methods("GET")

	api.HandleFunc("/vehicles", h.ListVehicles).Methods("GET")
	api.HandleFunc("/vehicles", h.CreateVehicle).Methods("POST")
	api.HandleFunc("/vehicles/{id}", h.GetVehicle).Methods("GET")
	api.HandleFunc("/vehicles/{id}", h.UpdateVehicle).Methods("PATCH")
	api.HandleFunc("/vehicles/{id}", h.DeleteVehicle).Methods("DELETE")

	api.HandleFunc("/services", h.ListServices).Methods("GET")
	api.HandleFunc("/services", h.CreateService).Methods("POST")
	api.HandleFunc("/services/recent", h.RecentServices).Methods("GET")
	api.HandleFunc("/services/active", h.ActiveService).Methods("GET")
	api.HandleFunc("/services/pending", h.PendingServices).Methods("GET")
	api.HandleFunc("/services/{id}", h.GetService).Methods("GET")
	api.HandleFunc("/services/{id}", h.UpdateService).Methods("PATCH")
	api.HandleFunc("/services/{id}/accept", h.AcceptService).Methods("POST")
	api.HandleFunc("/services/{id}/decline", h.DeclineService).Methods("POST")
	api.HandleFunc("/services/{id}/complete", h.CompleteService).Methods("POST")

	api.HandleFunc("/services/{id}/tracking", h.GetTracking).Methods("GET")
	api.HandleFunc("/services/{id}/tracking", h.UpdateTracking).Methods("PATCH")
	api.HandleFunc("/services/{id}/tracking/ws", h.TrackingSocket).Methods("GET")

	api.HandleFunc("/wallet/transactions", h.ListTransactions).Methods("GET")
	api.HandleFunc("/wallet/transactions", h.CreateTransaction).Methods("POST")

	api.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications", h.CreateNotification).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("PATCH")

	api.HandleFunc("/partners/stats", h.PartnerStats).Methods("GET")
	api.HandleFunc("/emergency", h.CreateEmergency).Methods("POST")
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity extracts the caller from the X-User-Id header.
func (h *Handler) identity(r *http.Request) (string, error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return "", domain.NewValidationError("X-User-Id", "missing user identity header")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err), domain.IsInsufficientFunds(err), domain.IsInvalidTransition(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsConflict(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid request body")
	}
	return nil
}
