// Package router arma el árbol de rutas chi del gateway.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gateway/internal/http/controllers"
	httperrors "github.com/dropDatabas3/gateway/internal/http/errors"
	mw "github.com/dropDatabas3/gateway/internal/http/middlewares"
)

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Controllers *controllers.Controllers
	// Auth es el guard JWT (mw.RequireAuth).
	Auth mw.Middleware
	// RateLimit protege login y registro. nil = sin límite.
	RateLimit mw.Middleware
	// Metrics sirve /metrics. nil = no se expone.
	Metrics http.Handler
	// Prefix va delante de las rutas de negocio, ej. "/api/v1". Vacío = raíz.
	Prefix      string
	CORSOrigins []string
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.New(http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.New(http.StatusMethodNotAllowed, "Method Not Allowed"))
	})

	c := d.Controllers
	r.Get("/readyz", c.Health.Ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	auth := d.Auth
	if auth == nil {
		// sin guard configurado las rutas protegidas quedan cerradas
		auth = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
			})
		}
	}

	var public []func(http.Handler) http.Handler
	if d.RateLimit != nil {
		public = append(public, d.RateLimit)
	}

	api := func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.With(public...).Post("/registration", c.Users.Register)
			r.With(public...).Post("/login", c.Users.Login)
			r.Get("/", c.Users.List)
			r.Get("/{id}", c.Users.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Post("/logout", c.Users.Logout)
				r.Patch("/{id}", c.Users.Update)
				r.Delete("/{id}", c.Users.Remove)
			})
		})

		r.Route("/contribution", func(r chi.Router) {
			r.Get("/", c.Contributions.List)
			r.Get("/{id}", c.Contributions.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Post("/", c.Contributions.Create)
				r.Patch("/{id}", c.Contributions.Update)
				r.Delete("/{id}", c.Contributions.Remove)
			})
		})
	}

	if prefix := normalizePrefix(d.Prefix); prefix != "" {
		r.Route(prefix, api)
	} else {
		api(r)
	}
	return r
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
