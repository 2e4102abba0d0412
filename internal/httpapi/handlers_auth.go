package httpapi

import (
	"errors"
	"net/http"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/service"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if errors.Is(err, ErrInvalidCredentials) {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.CurrentUser(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordChangeRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), actor, req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := a.auth.CreateStaff(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
