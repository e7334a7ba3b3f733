package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field es un alias para no importar zap en cada paquete.
type Field = zap.Field

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ─── Negocio ───

func UserID(v int64) zap.Field { return zap.Int64("user_id", v) }

func ContributionID(v int64) zap.Field { return zap.Int64("contribution_id", v) }

// Email loguea el email enmascarado (MaskEmail).
func Email(v string) zap.Field { return zap.String("email", MaskEmail(v)) }

// ─── RPC ───

func Pattern(v string) zap.Field { return zap.String("pattern", v) }

func Channel(v string) zap.Field { return zap.String("channel", v) }

func Attempt(v int) zap.Field { return zap.Int("attempt", v) }

func Backoff(v time.Duration) zap.Field { return zap.Duration("backoff", v) }

// ─── Coordinación ───

func LockKey(v string) zap.Field { return zap.String("lock_key", v) }

func CacheKey(v string) zap.Field { return zap.String("cache_key", v) }

func Cached(v bool) zap.Field { return zap.Bool("cached", v) }

func Saga(v string) zap.Field { return zap.String("saga", v) }

func Step(v string) zap.Field { return zap.String("step", v) }

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Int64(key string, v int64) zap.Field { return zap.Int64(key, v) }
