package middlewares

import (
	"context"

	"github.com/dropDatabas3/gateway/internal/coordinator"
)

type ctxKey string

const ctxPrincipalKey ctxKey = "principal"

// WithPrincipal inyecta el usuario autenticado.
func WithPrincipal(ctx context.Context, p coordinator.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// GetPrincipal devuelve el usuario autenticado. ok=false si la ruta no pasó por RequireAuth.
func GetPrincipal(ctx context.Context) (coordinator.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(coordinator.Principal)
	return p, ok
}
