package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/odin-pos/internal/domain/auth"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid register body")
		return
	}
	u, err := h.users.Register(r.Context(), auth.RegisterRequest{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		h.userError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*u))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid login body")
		return
	}
	u, err := h.users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.userError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid user body")
		return
	}
	u, err := h.users.CreateUser(r.Context(), auth.CreateUserRequest{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		h.userError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*u))
}

func (h *Handler) ToggleUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.ToggleUser(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		h.userError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Email: u.Email, IsActive: u.Active})
}

func (h *Handler) userError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *auth.ValidationError
	switch {
	case errors.As(err, &validationErr):
		badRequest(w, validationErr.Reason)
	case errors.Is(err, auth.ErrUserExists):
		badRequest(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	case errors.Is(err, auth.ErrUserNotFound):
		notFound(w)
	default:
		internalError(w, r, err)
	}
}
