package middlewares

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

const RequestIDHeader = "X-Request-Id"

// WithRequestID toma X-Request-Id del cliente o genera un uuid. El id viaja en
// el contexto (rpc.WithRequestID) hasta la meta de cada RPC y en el logger.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, rid)

			ctx := rpc.WithRequestID(r.Context(), rid)
			ctx = logger.With(ctx, logger.RequestID(rid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
