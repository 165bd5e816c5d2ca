package handlers

import (
	"net/http"

	"voltcare/domain"

	"github.com/gorilla/mux"
)

// GetUser returns a user by id.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUserByEmail returns a user by email address.
func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUserByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateUser registers a user. Creation is idempotent by email: posting an
// existing email returns the stored account with 200 instead of 201.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email        string      `json:"email"`
		Name         string      `json:"name"`
		Phone        string      `json:"phone"`
		Role         domain.Role `json:"role"`
		ProfileImage string      `json:"profileImage"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	if input.Email == "" {
		h.writeError(w, domain.NewValidationError("email", "email is required"))
		return
	}

	if existing, err := h.store.GetUserByEmail(r.Context(), input.Email); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	} else if !domain.IsNotFound(err) {
		h.writeError(w, err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), &domain.User{
		Email:        input.Email,
		Name:         input.Name,
		Phone:        input.Phone,
		Role:         input.Role,
		ProfileImage: input.ProfileImage,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("User created", "userID", user.ID, "role", string(user.Role))
	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser applies a partial profile update.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name         *string `json:"name"`
		Phone        *string `json:"phone"`
		ProfileImage *string `json:"profileImage"`
		IsActive     *bool   `json:"isActive"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	user, err := h.store.UpdateUser(r.Context(), mux.Vars(r)["id"], func(u *domain.User) {
		if input.Name != nil {
			u.Name = *input.Name
		}
		if input.Phone != nil {
			u.Phone = *input.Phone
		}
		if input.ProfileImage != nil {
			u.ProfileImage = *input.ProfileImage
		}
		if input.IsActive != nil {
			u.IsActive = *input.IsActive
		}
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CustomerStats returns the caller's completed-service summary.
func (h *Handler) CustomerStats(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats, err := h.dispatcher.Stats(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PartnerStats returns the caller's earnings for the current day.
func (h *Handler) PartnerStats(w http.ResponseWriter, r *http.Request) {
	partnerID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats, err := h.dispatcher.StatsForPartner(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
