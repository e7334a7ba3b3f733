// Package session registra sesiones (jti → userId) y presencia de usuarios en el cache.
//
// El TTL de cada sesión es la vida restante del token que describe: el registro
// nunca sobrevive al token. El guard HTTP solo lee.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
)

const (
	DefaultOnlineTTL     = 60 * time.Second
	DefaultRequestMapTTL = 15 * time.Minute
)

// Tracker opera sobre keys sess:<jti>, online:<userId> y req:<requestId>.
type Tracker struct {
	store      cache.Client
	onlineTTL  time.Duration
	requestTTL time.Duration
}

func New(store cache.Client, onlineTTL, requestTTL time.Duration) *Tracker {
	if onlineTTL <= 0 {
		onlineTTL = DefaultOnlineTTL
	}
	if requestTTL <= 0 {
		requestTTL = DefaultRequestMapTTL
	}
	return &Tracker{store: store, onlineTTL: onlineTTL, requestTTL: requestTTL}
}

func sessionKey(jti string) string  { return "sess:" + jti }
func onlineKey(userID int64) string { return "online:" + strconv.FormatInt(userID, 10) }
func requestKey(rid string) string  { return "req:" + rid }

// MarkSession registra jti con TTL ttlSec. ttlSec <= 0 no registra nada: un token
// ya vencido no tiene sesión viva.
func (t *Tracker) MarkSession(ctx context.Context, jti string, userID int64, ttlSec int64) error {
	if jti == "" || ttlSec <= 0 {
		return nil
	}
	if err := t.store.Set(ctx, sessionKey(jti), strconv.FormatInt(userID, 10), time.Duration(ttlSec)*time.Second); err != nil {
		return fmt.Errorf("session: mark %s: %w", jti, err)
	}
	return nil
}

// IsSessionActive reporta si jti sigue registrado.
func (t *Tracker) IsSessionActive(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	ok, err := t.store.Exists(ctx, sessionKey(jti))
	if err != nil {
		return false, fmt.Errorf("session: check %s: %w", jti, err)
	}
	return ok, nil
}

// SessionOwner devuelve el userId dueño de jti.
func (t *Tracker) SessionOwner(ctx context.Context, jti string) (int64, bool, error) {
	v, err := t.store.Get(ctx, sessionKey(jti))
	if cache.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("session: owner %s: %w", jti, err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("session: corrupt record %s: %w", jti, err)
	}
	return id, true, nil
}

func (t *Tracker) RevokeSession(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	if err := t.store.Delete(ctx, sessionKey(jti)); err != nil {
		return fmt.Errorf("session: revoke %s: %w", jti, err)
	}
	return nil
}

// MarkOnline marca presencia. ttlSec <= 0 usa el TTL por defecto (60s).
func (t *Tracker) MarkOnline(ctx context.Context, userID int64, ttlSec int64) error {
	ttl := t.onlineTTL
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}
	if err := t.store.Set(ctx, onlineKey(userID), "1", ttl); err != nil {
		return fmt.Errorf("session: online %d: %w", userID, err)
	}
	return nil
}

func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return t.store.Exists(ctx, onlineKey(userID))
}

// MapRequestToUser asocia un request id al usuario (diagnóstico / correlación de logs).
func (t *Tracker) MapRequestToUser(ctx context.Context, requestID string, userID int64) error {
	if requestID == "" {
		return nil
	}
	if err := t.store.Set(ctx, requestKey(requestID), strconv.FormatInt(userID, 10), t.requestTTL); err != nil {
		return fmt.Errorf("session: map request %s: %w", requestID, err)
	}
	return nil
}

// UserForRequest resuelve el usuario asociado a un request id.
func (t *Tracker) UserForRequest(ctx context.Context, requestID string) (int64, bool, error) {
	v, err := t.store.Get(ctx, requestKey(requestID))
	if cache.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
