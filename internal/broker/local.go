package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/gateway/internal/rpc"
)

// Local es un rpc.Transport in-process: cada canal se atiende con su Router.
// El envelope y el reply pasan por el mismo codec que el transporte AMQP.
// Se usa en tests y con broker.kind=local.
type Local struct {
	routes map[rpc.Channel]*Router
}

func NewLocal() *Local {
	return &Local{routes: make(map[rpc.Channel]*Router)}
}

// Mount asigna un router a un canal.
func (l *Local) Mount(ch rpc.Channel, r *Router) *Local {
	l.routes[ch] = r
	return l
}

// Mounted reporta si el canal tiene router.
func (l *Local) Mounted(ch rpc.Channel) bool {
	_, ok := l.routes[ch]
	return ok
}

func (l *Local) Request(ctx context.Context, ch rpc.Channel, env rpc.Envelope) (json.RawMessage, error) {
	r, ok := l.routes[ch]
	if !ok {
		return nil, fmt.Errorf("%w: no consumer for channel %q", rpc.ErrTransport, ch)
	}
	body, err := env.MarshalWire()
	if err != nil {
		return nil, err
	}

	done := make(chan []byte, 1)
	go func() {
		in, err := rpc.DecodeEnvelope(body)
		if err != nil {
			b, _ := rpc.EncodeReply(env.ID, nil, rpc.NewError(400, err.Error()))
			done <- b
			return
		}
		// el handler no ve la cancelación del llamador, igual que un consumer remoto
		done <- r.Dispatch(context.WithoutCancel(ctx), in)
	}()

	select {
	case b := <-done:
		return DecodeReply(env.ID, b)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DecodeReply valida la correlación y separa response de err.
func DecodeReply(id string, b []byte) (json.RawMessage, error) {
	var rep rpc.Reply
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("%w: invalid reply: %v", rpc.ErrTransport, err)
	}
	if rep.ID != "" && rep.ID != id {
		return nil, fmt.Errorf("%w: reply id mismatch", rpc.ErrTransport)
	}
	if rep.Failed() {
		return nil, rep.RemoteError()
	}
	return rep.Response, nil
}
