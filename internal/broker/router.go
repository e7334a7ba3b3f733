// Package broker contiene el router estático patrón→handler y el transporte
// in-process. El transporte AMQP vive en broker/amqp.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/gateway/internal/rpc"
)

// Handler atiende un patrón. El valor devuelto se serializa como response;
// un error se serializa como {message, status}.
type Handler func(ctx context.Context, env rpc.Envelope) (any, error)

// Router es la tabla de dispatch: un patrón, un handler. Los patrones válidos
// son los enumerados en rpc; registrar uno desconocido es un error de programación.
type Router struct {
	mu       sync.RWMutex
	handlers map[rpc.Pattern]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[rpc.Pattern]Handler)}
}

// Handle registra h para p. Panic si p no está enumerado o ya tiene handler.
func (r *Router) Handle(p rpc.Pattern, h Handler) *Router {
	if _, ok := p.Channel(); !ok {
		panic(fmt.Sprintf("broker: unknown pattern %q", p))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[p]; dup {
		panic(fmt.Sprintf("broker: duplicate handler for %q", p))
	}
	r.handlers[p] = h
	return r
}

// Dispatch ejecuta el handler del envelope y devuelve el reply serializado.
func (r *Router) Dispatch(ctx context.Context, env rpc.Envelope) []byte {
	r.mu.RLock()
	h, ok := r.handlers[env.Pattern]
	r.mu.RUnlock()

	var (
		resp any
		err  error
	)
	if !ok {
		err = rpc.NewError(404, fmt.Sprintf("There is no matching message handler defined in the remote service (%s)", env.Pattern))
	} else {
		ctx = rpc.WithRequestID(ctx, env.Meta.RequestID)
		resp, err = h(ctx, env)
	}
	b, mErr := rpc.EncodeReply(env.ID, resp, err)
	if mErr != nil {
		b, _ = rpc.EncodeReply(env.ID, nil, rpc.NewError(500, mErr.Error()))
	}
	return b
}

// Missing lista los patrones del canal sin handler.
func (r *Router) Missing(ch rpc.Channel) []rpc.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []rpc.Pattern
	for _, p := range rpc.Patterns(ch) {
		if _, ok := r.handlers[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bind decodifica el payload del envelope en T.
func Bind[T any](env rpc.Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, rpc.NewError(400, fmt.Sprintf("invalid payload for %s: %v", env.Pattern, err))
	}
	return v, nil
}
