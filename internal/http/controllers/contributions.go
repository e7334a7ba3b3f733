package controllers

import (
	"net/http"

	"github.com/dropDatabas3/gateway/internal/coordinator"
	"github.com/dropDatabas3/gateway/internal/downstream"
	httperrors "github.com/dropDatabas3/gateway/internal/http/errors"
	"github.com/dropDatabas3/gateway/internal/http/helpers"
	mw "github.com/dropDatabas3/gateway/internal/http/middlewares"
)

// ContributionController maneja /contribution.
type ContributionController struct {
	contribs ContributionFlows
}

// POST /contribution (auth)
func (c *ContributionController) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	var in coordinator.CreateContributionInput
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	created, err := c.contribs.CreateContribution(r.Context(), p, in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, created)
}

// GET /contribution?page=&limit=&authorId=&publishedFrom=&publishedTo=
func (c *ContributionController) List(w http.ResponseWriter, r *http.Request) {
	q, err := downstream.ParseListQuery(r.URL.Query())
	if err != nil {
		httperrors.WriteError(w, httperrors.Wrap(err, http.StatusBadRequest, err.Error()))
		return
	}
	list, err := c.contribs.ListContributions(r.Context(), q)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, list)
}

// GET /contribution/{id}
func (c *ContributionController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	item, err := c.contribs.GetContribution(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, item)
}

// PATCH /contribution/{id} (auth)
func (c *ContributionController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	var in downstream.UpdateContribution
	if !helpers.ReadJSON(w, r, &in) {
		return
	}
	updated, err := c.contribs.UpdateContribution(r.Context(), p, id, in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, updated)
}

// DELETE /contribution/{id} (auth)
func (c *ContributionController) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := helpers.PathID(w, r, "id")
	if !ok {
		return
	}
	p, ok := mw.GetPrincipal(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	removed, err := c.contribs.RemoveContribution(r.Context(), p, id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, removed)
}
