// Package audit emite eventos de seguridad/negocio en el logger "audit".
// Hoy el sink es el mismo zap global (stdout o archivo con rotación); se
// filtra por logger=audit.
package audit

import (
	"context"

	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

// Eventos emitidos por el coordinator.
const (
	UserRegistered      = "user.registered"
	UserLoggedIn        = "user.logged_in"
	LoginFailed         = "user.login_failed"
	UserLoggedOut       = "user.logged_out"
	SessionForeign      = "session.foreign_jti"
	ContributionOrphan  = "contribution.orphaned"
	ContributionCreated = "contribution.created"
)

// Log escribe un evento de auditoría. El request id del contexto viaja siempre.
func Log(ctx context.Context, event string, fields ...logger.Field) {
	fs := make([]logger.Field, 0, len(fields)+2)
	fs = append(fs, logger.String("event", event))
	if rid := rpc.RequestIDFrom(ctx); rid != "" {
		fs = append(fs, logger.RequestID(rid))
	}
	fs = append(fs, fields...)

	l := logger.Named("audit")
	if event == ContributionOrphan {
		l.Error("audit", fs...)
		return
	}
	l.Info("audit", fs...)
}
