package handlers

import (
	"net/http"

	"voltcare/domain"

	"github.com/gorilla/mux"
)

// ListVehicles returns the caller's vehicles.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	vehicles, err := h.store.GetVehiclesByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// GetVehicle returns a vehicle by id.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.store.GetVehicle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// CreateVehicle registers a vehicle for the caller.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var input struct {
		Brand              string `json:"brand"`
		Model              string `json:"model"`
		RegistrationNumber string `json:"registrationNumber"`
		Year               int    `json:"year"`
		Color              string `json:"color"`
		BatteryCapacity    int    `json:"batteryCapacity"`
		CurrentBattery     int    `json:"currentBattery"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	if input.Brand == "" || input.Model == "" {
		h.writeError(w, domain.NewValidationError("brand", "brand and model are required"))
		return
	}
	if input.RegistrationNumber == "" {
		h.writeError(w, domain.NewValidationError("registrationNumber", "registration number is required"))
		return
	}

	vehicle, err := h.store.CreateVehicle(r.Context(), &domain.Vehicle{
		UserID:             userID,
		Brand:              input.Brand,
		Model:              input.Model,
		RegistrationNumber: input.RegistrationNumber,
		Year:               input.Year,
		Color:              input.Color,
		BatteryCapacity:    input.BatteryCapacity,
		CurrentBattery:     input.CurrentBattery,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("Vehicle created", "vehicleID", vehicle.ID, "userID", userID)
	writeJSON(w, http.StatusCreated, vehicle)
}

// UpdateVehicle applies a partial update to a vehicle.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Brand           *string `json:"brand"`
		Model           *string `json:"model"`
		Year            *int    `json:"year"`
		Color           *string `json:"color"`
		BatteryCapacity *int    `json:"batteryCapacity"`
		CurrentBattery  *int    `json:"currentBattery"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	vehicle, err := h.store.UpdateVehicle(r.Context(), mux.Vars(r)["id"], func(v *domain.Vehicle) {
		if input.Brand != nil {
			v.Brand = *input.Brand
		}
		if input.Model != nil {
			v.Model = *input.Model
		}
		if input.Year != nil {
			v.Year = *input.Year
		}
		if input.Color != nil {
			v.Color = *input.Color
		}
		if input.BatteryCapacity != nil {
			v.BatteryCapacity = *input.BatteryCapacity
		}
		if input.CurrentBattery != nil {
			v.CurrentBattery = *input.CurrentBattery
		}
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// DeleteVehicle removes a vehicle.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteVehicle(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
