package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/service"
)

const maxLoginFormMemory = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login. Accepts an OAuth2 password form or a JSON body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxLoginFormMemory)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	default:
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	token, _, err := h.users.Authenticate(r.Context(), identifier, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(w, http.StatusBadRequest, "incorrect email or password")
		return
	case errors.Is(err, service.ErrInactiveUser):
		respondError(w, http.StatusBadRequest, "inactive user")
		return
	case err != nil:
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, token)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), ClaimsFrom(r.Context())); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, UserFrom(r.Context()))
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// UpdateUser handles PATCH /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UserUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.UpdateUser(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), UserFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
