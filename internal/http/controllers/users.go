package controllers

import (
	"net/http"

	"github.com/dropDatabas3/gateway/internal/coordinator"
	"github.com/dropDatabas3/gateway/internal/downstream"
	httperrors "github.com/dropDatabas3/gateway/internal/http/errors"
	"github.com/dropDatabas3/gateway/internal/http/helpers"
	mw "github.com/dropDatabas3/gateway/internal/http/middlewares"
	"github.com/dropDatabas3/gateway/internal/validation"
)

// UserController maneja /user.
type UserController struct {
	auth  AuthFlows
	users UserFlows
	prod  bool
}

// POST /user/registration
func (c *UserController) Register(w http.ResponseWriter, r *http.Request) {
	var in coordinator.RegisterInput
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if err := validation.Registration(in.Email, in.Name, in.Password); err != nil {
		httperrors.WriteError(w, httperrors.Wrap(err, http.StatusBadRequest, validation.Message(err)))
		return
	}
	res, err := c.auth.Register(r.Context(), in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.SetRefreshCookie(w, res.Tokens.RefreshToken, c.prod)
	helpers.WriteJSON(w, http.StatusCreated, res)
}

// POST /user/login
func (c *UserController) Login(w http.ResponseWriter, r *http.Request) {
	var in coordinator.LoginInput
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	if err := validation.Login(in.Email, in.Password); err != nil {
		httperrors.WriteError(w, httperrors.Wrap(err, http.StatusBadRequest, validation.Message(err)))
		return
	}
	res, err := c.auth.Login(r.Context(), in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.SetRefreshCookie(w, res.Tokens.RefreshToken, c.prod)
	helpers.WriteJSON(w, http.StatusOK, res)
}

type logoutRequest struct {
	RefreshJti string `json:"refreshJti"`
}

// POST /user/logout (auth). Revoca el jti del access token y, si viene, el del refresh.
func (c *UserController) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	var in logoutRequest
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	jtis := []string{p.Jti}
	if in.RefreshJti != "" {
		jtis = append(jtis, in.RefreshJti)
	}
	if err := c.auth.Logout(r.Context(), p.ID, jtis...); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.ClearRefreshCookie(w, c.prod)
	w.WriteHeader(http.StatusNoContent)
}

// GET /user
func (c *UserController) List(w http.ResponseWriter, r *http.Request) {
	users, err := c.users.ListUsers(r.Context())
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if users == nil {
		users = []downstream.User{}
	}
	helpers.WriteJSON(w, http.StatusOK, users)
}

// GET /user/{id}
func (c *UserController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	u, err := c.users.GetUser(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, u)
}

// PATCH /user/{id} (auth, solo el propio usuario)
func (c *UserController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	var in downstream.UpdateUser
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	in.ID = id
	u, err := c.users.UpdateUser(r.Context(), p, id, in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, u)
}

// DELETE /user/{id} (auth, solo el propio usuario)
func (c *UserController) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	removed, err := c.users.RemoveUser(r.Context(), p, id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, removed)
}
