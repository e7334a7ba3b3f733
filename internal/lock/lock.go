// Package lock implementa locks de idempotencia sobre el SetNX atómico del cache.
//
// Un lock es una key con TTL: mientras exista, otra operación con la misma key
// recibe ErrHeld (409). No hay token de dueño; Release borra la key sin
// verificar quién la tomó, y si el dueño muere el TTL la libera.
package lock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
	"github.com/dropDatabas3/gateway/internal/metrics"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

// DefaultTTL de un lock de registro/login.
const DefaultTTL = 30 * time.Second

const releaseTimeout = 2 * time.Second

var ErrHeld = errors.New("lock: held by another operation")

// MsgUnavailable es lo único que ve el cliente cuando el store de locks falla.
// La key (con el email) queda en Cause, solo para logs.
const MsgUnavailable = "Service temporarily unavailable"

// Locker adquiere y libera locks. Seguro para uso concurrente.
type Locker struct {
	store cache.Client
	ttl   time.Duration
}

func New(store cache.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{store: store, ttl: ttl}
}

// Acquire intenta tomar key. true si la tomó este llamador.
// holder se guarda como valor solo para diagnóstico (request id).
// Un error del store no es "held": se devuelve tal cual.
func (l *Locker) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	if holder == "" {
		holder = "1"
	}
	ok, err := l.store.SetNX(ctx, key, holder, ttl)
	scope := scopeOf(key)
	switch {
	case err != nil:
		metrics.LockAcquire.WithLabelValues(scope, "error").Inc()
		return false, fmt.Errorf("lock: acquire %s: %w", key, err)
	case !ok:
		metrics.LockAcquire.WithLabelValues(scope, "held").Inc()
	default:
		metrics.LockAcquire.WithLabelValues(scope, "acquired").Inc()
	}
	return ok, nil
}

// Release borra la key. Corre aunque ctx ya esté cancelado: un lock que no se
// libera bloquea al usuario hasta que venza el TTL.
func (l *Locker) Release(ctx context.Context, key string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := l.store.Delete(rctx, key); err != nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// Guard toma key, ejecuta fn y libera al terminar (éxito, error o panic).
// Si la key está tomada devuelve un *rpc.Error 409 con conflictMsg, que envuelve ErrHeld.
// Si el store falla devuelve un *rpc.Error 503 transitorio sin la key en el mensaje.
func (l *Locker) Guard(ctx context.Context, key, conflictMsg string, fn func(ctx context.Context) error) error {
	log := logger.From(ctx).With(logger.Component("lock"), logger.LockKey(key))

	ok, err := l.Acquire(ctx, key, rpc.RequestIDFrom(ctx), 0)
	if err != nil {
		log.Error("lock acquire failed", logger.Err(err))
		return &rpc.Error{
			Message:   MsgUnavailable,
			Status:    http.StatusServiceUnavailable,
			Transient: true,
			RequestID: rpc.RequestIDFrom(ctx),
			Cause:     err,
		}
	}
	if !ok {
		log.Info("lock held")
		return &rpc.Error{Message: conflictMsg, Status: http.StatusConflict, Cause: ErrHeld}
	}
	defer func() {
		if err := l.Release(ctx, key); err != nil {
			log.Warn("lock release failed", logger.Err(err))
		}
	}()
	return fn(ctx)
}

// IsHeld reporta si err es un conflicto de lock.
func IsHeld(err error) bool { return errors.Is(err, ErrHeld) }

// NormalizeEmail: trim + lower. La key del lock no debe depender del casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegistrationKey = reg:<email>.
func RegistrationKey(email string) string { return "reg:" + NormalizeEmail(email) }

// LoginKey = auth:<email>.
func LoginKey(email string) string { return "auth:" + NormalizeEmail(email) }

func scopeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
