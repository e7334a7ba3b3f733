package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gateway/internal/coordinator"
	httperrors "github.com/dropDatabas3/gateway/internal/http/errors"
	jwtx "github.com/dropDatabas3/gateway/internal/jwt"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
)

// SessionChecker responde si el jti sigue vivo (no revocado por logout).
type SessionChecker interface {
	IsSessionActive(ctx context.Context, jti string) (bool, error)
}

var errSessionRevoked = httperrors.New(http.StatusUnauthorized, "Session revoked")

// RequireAuth valida el Bearer token y deja el Principal en el contexto.
//   - sin header o esquema distinto de Bearer: 401
//   - token vencido: 401
//   - firma/claims inválidos: 403
//   - jti revocado: 401
//
// Si el store de sesiones falla se deja pasar: el token ya fue verificado y
// el cache no debe tirar la API.
func RequireAuth(verifier jwtx.AccessVerifier, sessions SessionChecker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeVerifyError(w, r, err)
				return
			}

			if sessions != nil && claims.Jti != "" {
				active, err := sessions.IsSessionActive(r.Context(), claims.Jti)
				switch {
				case err != nil:
					logger.From(r.Context()).Warn("session check failed", logger.Op("auth.guard"), logger.Err(err))
				case !active:
					httperrors.WriteError(w, errSessionRevoked)
					return
				}
			}

			p := coordinator.Principal{ID: claims.UserID, Name: claims.Name, Email: claims.Email, Jti: claims.Jti}
			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.With(ctx, logger.UserID(p.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(h, " ")
	if !found || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jwtx.ErrMissingToken):
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
	case errors.Is(err, jwtx.ErrExpired):
		httperrors.WriteError(w, httperrors.ErrTokenExpired)
	case errors.Is(err, jwtx.ErrInvalid):
		logger.From(r.Context()).Warn("invalid access token", logger.Op("auth.guard"), logger.Err(err))
		httperrors.WriteError(w, httperrors.Wrap(err, http.StatusForbidden, err.Error()))
	default:
		// verificación remota: el error ya trae status (401 del servicio de auth, 502/504 de transporte)
		httperrors.WriteError(w, err)
	}
}
