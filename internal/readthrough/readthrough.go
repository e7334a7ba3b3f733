// Package readthrough es la capa de cache read-through por recurso.
//
// Entidades: key directa "<resource>:id:<id>" (o "<resource>:<field>:<value>").
// Listas: "<resource>:list:<version>?<query canónica>", donde version es un token
// aleatorio guardado en "<resource>:list:version". Cualquier escritura del recurso
// reemplaza el token; las listas viejas quedan inalcanzables y vencen por TTL.
// Nunca se enumeran ni borran keys por patrón.
package readthrough

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
	"github.com/dropDatabas3/gateway/internal/metrics"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Layer cachea entidades E y listas L de un recurso. Seguro para uso concurrente.
type Layer[E any, L any] struct {
	store    cache.Client
	resource string
	ttl      time.Duration
	group    singleflight.Group
}

// New crea la capa para resource con el TTL por defecto de entradas.
func New[E any, L any](store cache.Client, resource string, ttl time.Duration) *Layer[E, L] {
	return &Layer[E, L]{store: store, resource: resource, ttl: ttl}
}

func (l *Layer[E, L]) Resource() string { return l.resource }

// Key arma la key de entidad por campo: Key("id", "7") = "<resource>:id:7".
func (l *Layer[E, L]) Key(field, value string) string {
	return l.resource + ":" + field + ":" + value
}

func (l *Layer[E, L]) versionKey() string { return l.resource + ":list:version" }

// ListKey arma la key de una lista para una versión y query dadas.
func (l *Layer[E, L]) ListKey(version string, q url.Values) string {
	return l.resource + ":list:" + version + "?" + CanonicalQuery(q)
}

func (l *Layer[E, L]) log(ctx context.Context) *zap.Logger {
	return logger.From(ctx).With(logger.Component("readthrough"), logger.String("resource", l.resource))
}

// ─── Entidades ───

// GetEntity lee "<resource>:id:<id>". Un error del store se trata como miss.
func (l *Layer[E, L]) GetEntity(ctx context.Context, id string) (E, bool) {
	return l.GetBy(ctx, "id", id)
}

// GetBy lee la entidad indexada por field.
func (l *Layer[E, L]) GetBy(ctx context.Context, field, value string) (E, bool) {
	var v E
	ok := l.read(ctx, l.Key(field, value), "entity", &v)
	return v, ok
}

// PutEntity sobreescribe la key de la entidad. ttl 0 = TTL por defecto de la capa.
func (l *Layer[E, L]) PutEntity(ctx context.Context, id string, v E, ttl time.Duration) error {
	return l.PutBy(ctx, "id", id, v, ttl)
}

func (l *Layer[E, L]) PutBy(ctx context.Context, field, value string, v E, ttl time.Duration) error {
	return l.write(ctx, l.Key(field, value), v, ttl)
}

func (l *Layer[E, L]) InvalidateEntity(ctx context.Context, id string) error {
	return l.InvalidateBy(ctx, "id", id)
}

func (l *Layer[E, L]) InvalidateBy(ctx context.Context, field, value string) error {
	key := l.Key(field, value)
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("readthrough: delete %s: %w", key, err)
	}
	return nil
}

// FetchEntity: hit => cache; miss => fetch (una sola vez por key entre llamadas
// concurrentes) y populate. Los errores de fetch no se cachean.
func (l *Layer[E, L]) FetchEntity(ctx context.Context, id string, fetch func(ctx context.Context) (E, error)) (E, error) {
	if v, ok := l.GetEntity(ctx, id); ok {
		return v, nil
	}
	key := l.Key("id", id)
	return do(ctx, &l.group, key, func(ctx context.Context) (E, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if err := l.write(ctx, key, v, 0); err != nil {
			l.log(ctx).Warn("cache populate failed", logger.CacheKey(key), logger.Err(err))
		}
		return v, nil
	})
}

// ─── Listas ───

// ListVersion devuelve el token actual, creándolo si no existe. La creación usa
// SetNX: si dos lectores compiten, ambos terminan con el mismo token.
func (l *Layer[E, L]) ListVersion(ctx context.Context) (string, error) {
	key := l.versionKey()
	v, err := l.store.Get(ctx, key)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !cache.IsNotFound(err) {
		return "", fmt.Errorf("readthrough: get %s: %w", key, err)
	}
	res, err, _ := l.group.Do(key, func() (any, error) {
		fresh := uuid.NewString()
		ok, err := l.store.SetNX(ctx, key, fresh, 0)
		if err != nil {
			return "", err
		}
		if ok {
			return fresh, nil
		}
		return l.store.Get(ctx, key)
	})
	if err != nil {
		return "", fmt.Errorf("readthrough: init %s: %w", key, err)
	}
	return res.(string), nil
}

// BumpListVersion reemplaza el token; invalida todas las listas cacheadas del recurso.
func (l *Layer[E, L]) BumpListVersion(ctx context.Context) error {
	key := l.versionKey()
	if err := l.store.Set(ctx, key, uuid.NewString(), 0); err != nil {
		return fmt.Errorf("readthrough: bump %s: %w", key, err)
	}
	l.log(ctx).Debug("list version bumped")
	return nil
}

// GetList resuelve la versión y lee la lista para q.
func (l *Layer[E, L]) GetList(ctx context.Context, q url.Values) (L, bool) {
	var v L
	ver, err := l.ListVersion(ctx)
	if err != nil {
		l.log(ctx).Warn("list version unavailable", logger.Err(err))
		metrics.CacheLookups.WithLabelValues(l.resource, "list", "miss").Inc()
		return v, false
	}
	ok := l.read(ctx, l.ListKey(ver, q), "list", &v)
	return v, ok
}

// PutList guarda la lista bajo la versión actual.
func (l *Layer[E, L]) PutList(ctx context.Context, q url.Values, v L, ttl time.Duration) error {
	ver, err := l.ListVersion(ctx)
	if err != nil {
		return err
	}
	return l.write(ctx, l.ListKey(ver, q), v, ttl)
}

// FetchList: igual que FetchEntity pero sobre la key versionada. El resultado se
// guarda bajo la versión leída al inicio; si un writer la cambió en el medio, la
// entrada queda huérfana y vence sola.
func (l *Layer[E, L]) FetchList(ctx context.Context, q url.Values, fetch func(ctx context.Context) (L, error)) (L, error) {
	ver, err := l.ListVersion(ctx)
	if err != nil {
		l.log(ctx).Warn("list version unavailable; bypassing cache", logger.Err(err))
		return fetch(ctx)
	}
	key := l.ListKey(ver, q)
	var v L
	if l.read(ctx, key, "list", &v) {
		return v, nil
	}
	return do(ctx, &l.group, key, func(ctx context.Context) (L, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if err := l.write(ctx, key, v, 0); err != nil {
			l.log(ctx).Warn("cache populate failed", logger.CacheKey(key), logger.Err(err))
		}
		return v, nil
	})
}

// ─── helpers ───

func (l *Layer[E, L]) read(ctx context.Context, key, kind string, out any) bool {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if !cache.IsNotFound(err) {
			l.log(ctx).Warn("cache read failed; treating as miss", logger.CacheKey(key), logger.Err(err))
		}
		metrics.CacheLookups.WithLabelValues(l.resource, kind, "miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		l.log(ctx).Warn("corrupt cache entry; dropping", logger.CacheKey(key), logger.Err(err))
		_ = l.store.Delete(ctx, key)
		metrics.CacheLookups.WithLabelValues(l.resource, kind, "miss").Inc()
		return false
	}
	metrics.CacheLookups.WithLabelValues(l.resource, kind, "hit").Inc()
	l.log(ctx).Debug("cache hit", logger.CacheKey(key), logger.Cached(true))
	return true
}

var errNullValue = errors.New("readthrough: refusing to cache null")

func (l *Layer[E, L]) write(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("readthrough: encode %s: %w", key, err)
	}
	if string(b) == "null" {
		return errNullValue
	}
	if err := l.store.Set(ctx, key, string(b), ttl); err != nil {
		return fmt.Errorf("readthrough: set %s: %w", key, err)
	}
	return nil
}

// do colapsa fetches concurrentes sobre key. El fetch compartido no hereda la
// cancelación de ningún llamador en particular; lo acota el timeout del cliente RPC.
func do[T any](ctx context.Context, g *singleflight.Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	shared := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) { return fn(shared) })
	select {
	case r := <-ch:
		if r.Err != nil {
			var zero T
			return zero, r.Err
		}
		return r.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CanonicalQuery: parámetros ordenados por nombre, vacíos descartados, valores
// URL-encoded ("%20" para espacios). Parámetros repetidos conservan su orden.
func CanonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k, vs := range q {
		if k == "" {
			continue
		}
		for _, v := range vs {
			if v != "" {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if v == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
