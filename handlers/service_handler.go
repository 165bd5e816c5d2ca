package handlers

import (
	"net/http"
	"time"

	"voltcare/domain"
	"voltcare/service"

	"github.com/gorilla/mux"
)

// serviceResponse is a service with its vehicle populated for client lists.
type serviceResponse struct {
	*domain.Service
	Vehicle *domain.Vehicle `json:"vehicle,omitempty"`
}

func (h *Handler) withVehicle(r *http.Request, svc *domain.Service) *serviceResponse {
	resp := &serviceResponse{Service: svc}
	if vehicle, err := h.store.GetVehicle(r.Context(), svc.VehicleID); err == nil {
		resp.Vehicle = vehicle
	}
	return resp
}

func (h *Handler) withVehicles(r *http.Request, services []*domain.Service) []*serviceResponse {
	out := make([]*serviceResponse, len(services))
	for i, svc := range services {
		out[i] = h.withVehicle(r, svc)
	}
	return out
}

// ListServices returns the caller's service history, newest first. Partners
// see the services they worked on; everyone else sees their bookings.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var services []*domain.Service
	if user, err := h.store.GetUser(r.Context(), userID); err == nil && user.Role == domain.RolePartner {
		services, err = h.store.GetServicesByPartner(r.Context(), userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
	} else {
		services, err = h.dispatcher.ServicesByCustomer(r.Context(), userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.withVehicles(r, services))
}

// RecentServices returns the caller's five most recent services.
func (h *Handler) RecentServices(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	services, err := h.dispatcher.ServicesByCustomer(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(services) > 5 {
		services = services[:5]
	}
	writeJSON(w, http.StatusOK, h.withVehicles(r, services))
}

// ActiveService returns the caller's assigned or in-progress service, or null.
func (h *Handler) ActiveService(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	svc, err := h.dispatcher.ActiveService(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if svc == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}

// PendingServices returns the open pool for the calling partner, excluding
// requests they already declined.
func (h *Handler) PendingServices(w http.ResponseWriter, r *http.Request) {
	partnerID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	services, err := h.dispatcher.PendingServices(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicles(r, services))
}

// GetService returns a single service with its vehicle.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.dispatcher.Service(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}

type createServiceInput struct {
	VehicleID        string           `json:"vehicleId"`
	ServiceType      string           `json:"serviceType"`
	IssueDescription string           `json:"issueDescription"`
	Priority         domain.Priority  `json:"priority"`
	ServiceLocation  *domain.Location `json:"serviceLocation"`
	ScheduledDate    *time.Time       `json:"scheduledDate"`
	EstimatedCost    string           `json:"estimatedCost"`
}

// CreateService books a service for the caller.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var input createServiceInput
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	svc, err := h.dispatcher.CreateService(r.Context(), service.CreateServiceRequest{
		CustomerID:       userID,
		VehicleID:        input.VehicleID,
		ServiceType:      input.ServiceType,
		IssueDescription: input.IssueDescription,
		Priority:         input.Priority,
		Location:         input.ServiceLocation,
		ScheduledDate:    input.ScheduledDate,
		EstimatedCost:    input.EstimatedCost,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.withVehicle(r, svc))
}

// CreateEmergency books an emergency service for the caller. The priority and
// base rate are forced regardless of the request body.
func (h *Handler) CreateEmergency(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var input createServiceInput
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	if input.ServiceType == "" {
		input.ServiceType = "emergency"
	}

	svc, err := h.dispatcher.CreateService(r.Context(), service.CreateServiceRequest{
		CustomerID:       userID,
		VehicleID:        input.VehicleID,
		ServiceType:      input.ServiceType,
		IssueDescription: input.IssueDescription,
		Priority:         domain.PriorityEmergency,
		Location:         input.ServiceLocation,
		ScheduledDate:    input.ScheduledDate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.withVehicle(r, svc))
}

// AcceptService claims a pending service for the calling partner. Losing the
// claim race yields 409.
func (h *Handler) AcceptService(w http.ResponseWriter, r *http.Request) {
	partnerID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var input struct {
		CurrentLocation *domain.Location `json:"currentLocation"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
	}

	svc, err := h.dispatcher.AcceptService(r.Context(), mux.Vars(r)["id"], partnerID, input.CurrentLocation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}

// DeclineService records that the calling partner passed on a request.
func (h *Handler) DeclineService(w http.ResponseWriter, r *http.Request) {
	partnerID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	svc, err := h.dispatcher.DeclineService(r.Context(), mux.Vars(r)["id"], partnerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}

// CompleteService finishes a service with the final cost and optional rating.
func (h *Handler) CompleteService(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FinalCost string `json:"finalCost"`
		Rating    int    `json:"rating"`
		Feedback  string `json:"feedback"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
	}

	svc, err := h.dispatcher.CompleteService(r.Context(), mux.Vars(r)["id"], input.FinalCost, input.Rating, input.Feedback)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}

// UpdateService applies a guarded partial update. A patch that only cancels a
// pending service runs the full cancellation path with its side effects.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Status           *domain.ServiceStatus `json:"status"`
		IssueDescription *string               `json:"issueDescription"`
		ScheduledDate    *time.Time            `json:"scheduledDate"`
		EstimatedCost    *string               `json:"estimatedCost"`
		FinalCost        *string               `json:"finalCost"`
		Rating           *int                  `json:"rating"`
		Feedback         *string               `json:"feedback"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	id := mux.Vars(r)["id"]
	if input.Status != nil && *input.Status == domain.ServiceCancelled {
		svc, err := h.dispatcher.CancelService(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
		return
	}

	svc, err := h.dispatcher.UpdateService(r.Context(), id, service.ServicePatch{
		Status:           input.Status,
		IssueDescription: input.IssueDescription,
		ScheduledDate:    input.ScheduledDate,
		EstimatedCost:    input.EstimatedCost,
		FinalCost:        input.FinalCost,
		Rating:           input.Rating,
		Feedback:         input.Feedback,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withVehicle(r, svc))
}
