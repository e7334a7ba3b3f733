// Package cache es el almacén clave/valor compartido del gateway.
//
// Backends:
//   - memory (in-process, go-cache; desarrollo y tests)
//   - redis (compartido entre réplicas; producción)
//
// Todas las keys llevan el prefijo del gateway ("gw:" por defecto). Los valores
// son strings; la serialización JSON vive en readthrough y session.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones del store.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL opcional.
	// Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda el valor solo si la key no existe. Es atómico: entre N llamadas
	// concurrentes sobre la misma key ausente, exactamente una devuelve true.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr suma 1 al contador key y devuelve el valor nuevo. El TTL se fija solo
	// cuando el contador nace. Las keys de contador no se leen con Get.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete elimina una key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	// Stats retorna estadísticas del cache.
	Stats(ctx context.Context) (Stats, error)
}

// Stats contiene estadísticas del cache.
type Stats struct {
	Driver     string
	Keys       int64
	UsedMemory string
	Hits       int64
	Misses     int64
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string // host:port (redis)
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys
}

// Errores de cache.
var (
	ErrNotFound = errNotFound{}
	ErrClosed   = errors.New("cache: client closed")
)

type errNotFound struct{}

func (e errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
