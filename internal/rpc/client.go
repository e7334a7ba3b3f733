package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/dropDatabas3/gateway/internal/metrics"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Transport envía un envelope al canal y espera el reply correlacionado.
// Debe respetar ctx (el cliente le pasa un ctx con el timeout del intento).
// Los errores de aplicación del downstream se devuelven como *Error.
type Transport interface {
	Request(ctx context.Context, ch Channel, env Envelope) (json.RawMessage, error)
}

// BackoffObserver recibe cada espera calculada antes de un reintento.
type BackoffObserver func(p Pattern, retry int, delay time.Duration)

// Client es el cliente RPC sobre el broker. Sin estado mutable: seguro para uso concurrente.
type Client struct {
	transport Transport
	policy    Policy
	randN     func(n int64) int64
	observe   BackoffObserver
}

type ClientOption func(*Client)

// WithPolicy cambia la política por defecto del cliente.
func WithPolicy(p Policy) ClientOption { return func(c *Client) { c.policy = p.With() } }

// WithBackoffObserver registra un observer de esperas (métricas/tests).
func WithBackoffObserver(fn BackoffObserver) ClientOption { return func(c *Client) { c.observe = fn } }

// WithRandom reemplaza la fuente de jitter.
func WithRandom(fn func(n int64) int64) ClientOption { return func(c *Client) { c.randN = fn } }

func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		policy:    DefaultPolicy(),
		randN:     rand.Int64N,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Policy devuelve la política por defecto.
func (c *Client) Policy() Policy { return c.policy }

// Call resuelve el canal del patrón y decodifica el reply en T.
func Call[T any](ctx context.Context, c *Client, p Pattern, payload any, opts ...Option) (T, error) {
	var out T
	ch, ok := p.Channel()
	if !ok {
		return out, &Error{Message: fmt.Sprintf("unknown pattern %q", p), Status: http.StatusInternalServerError, Pattern: p, Cause: ErrUnknownPattern}
	}
	err := c.Send(ctx, ch, p, payload, &out, opts...)
	return out, err
}

// Send envía payload con el patrón p al canal ch y decodifica el reply en out (puede ser nil).
// Reintenta solo errores transitorios, hasta MaxRetries veces, con backoff exponencial + jitter.
// Si ctx tiene deadline, la llamada completa (intentos + esperas) la respeta.
// Todo error devuelto es *Error.
func (c *Client) Send(ctx context.Context, ch Channel, p Pattern, payload any, out any, opts ...Option) error {
	pol := c.policy.With(opts...)
	ctx, rid := EnsureRequestID(ctx)
	log := logger.From(ctx).With(logger.Pattern(string(p)), logger.Channel(string(ch)), logger.RequestID(rid))

	env, err := NewEnvelope(p, payload, Meta{RequestID: rid})
	if err != nil {
		return &Error{Message: err.Error(), Status: http.StatusInternalServerError, Pattern: p, RequestID: rid, Cause: err}
	}

	start := time.Now()
	attempts := 0
	var reply json.RawMessage

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		i := attempts - 1
		if i >= pol.MaxRetries {
			return 0, true
		}
		d := pol.Delay(i, c.randN)
		metrics.RPCRetries.WithLabelValues(string(p)).Inc()
		if c.observe != nil {
			c.observe(p, i, d)
		}
		log.Debug("rpc retry scheduled", logger.Attempt(attempts+1), logger.Backoff(d))
		return d, false
	})

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := c.attempt(ctx, ch, env, pol.Timeout)
		if err == nil {
			reply = r
			return nil
		}
		if ctx.Err() == nil && IsTransient(err) {
			log.Warn("rpc attempt failed", logger.Attempt(attempts), logger.Err(err))
			return retry.RetryableError(err)
		}
		return err
	})
	metrics.RPCDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())

	if err != nil {
		e := AsError(err)
		e.Pattern = p
		e.RequestID = rid
		outcome := "permanent"
		if e.Transient {
			outcome = "transient"
		}
		metrics.RPCRequests.WithLabelValues(string(p), outcome).Inc()
		lvl := log.Info
		if e.Status >= 500 {
			lvl = log.Error
		}
		lvl("rpc call failed", logger.Attempt(attempts), logger.Status(e.Status), zap.String("message", e.Message))
		return e
	}
	metrics.RPCRequests.WithLabelValues(string(p), "ok").Inc()

	if out != nil && len(reply) > 0 {
		if err := json.Unmarshal(reply, out); err != nil {
			return &Error{
				Message:   fmt.Sprintf("invalid reply for %s: %v", p, err),
				Status:    http.StatusBadGateway,
				Pattern:   p,
				RequestID: rid,
				Cause:     err,
			}
		}
	}
	return nil
}

// attempt hace un intento con su propio timeout. Si vence el timeout del intento
// (y no el ctx externo) el error es ErrTimeout, transitorio.
func (c *Client) attempt(ctx context.Context, ch Channel, env Envelope, timeout time.Duration) (json.RawMessage, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := c.transport.Request(actx, ch, env)
	if err != nil {
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, err
	}
	return reply, nil
}
