package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Meta viaja dentro del payload de cada request (campo "meta") y en el header
// x-request-id del mensaje.
type Meta struct {
	RequestID string `json:"requestId"`
}

// Envelope es la unidad request/reply enviada a un servicio downstream.
// Inmutable una vez construida con NewEnvelope.
type Envelope struct {
	ID      string // correlation id del mensaje
	Pattern Pattern
	Payload json.RawMessage // incluye "meta"
	Meta    Meta
}

// NewEnvelope serializa payload e inyecta meta. Si payload es un objeto JSON,
// meta se agrega como campo; si es nil se envía {"meta": ...}.
func NewEnvelope(p Pattern, payload any, meta Meta) (Envelope, error) {
	raw, err := withMeta(payload, meta)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: encode payload for %s: %w", p, err)
	}
	return Envelope{
		ID:      uuid.NewString(),
		Pattern: p,
		Payload: raw,
		Meta:    meta,
	}, nil
}

func withMeta(payload any, meta Meta) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
			// payload escalar: los handlers downstream lo reciben tal cual
			return b, nil
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	if _, ok := fields["meta"]; !ok {
		mb, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		fields["meta"] = mb
	}
	return json.Marshal(fields)
}

type wireRequest struct {
	ID      string          `json:"id"`
	Pattern Pattern         `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// MarshalWire produce el body del mensaje: {"id","pattern","data"}.
func (e Envelope) MarshalWire() ([]byte, error) {
	return json.Marshal(wireRequest{ID: e.ID, Pattern: e.Pattern, Data: e.Payload})
}

// DecodeEnvelope es la inversa de MarshalWire (lado handler).
func DecodeEnvelope(b []byte) (Envelope, error) {
	var w wireRequest
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, fmt.Errorf("rpc: decode envelope: %w", err)
	}
	env := Envelope{ID: w.ID, Pattern: w.Pattern, Payload: w.Data}
	var m struct {
		Meta Meta `json:"meta"`
	}
	if len(w.Data) > 0 && bytes.HasPrefix(bytes.TrimSpace(w.Data), []byte("{")) {
		_ = json.Unmarshal(w.Data, &m)
		env.Meta = m.Meta
	}
	return env, nil
}

// Reply es el body de la respuesta: {"id","response","err","isDisposed"}.
type Reply struct {
	ID         string          `json:"id"`
	Response   json.RawMessage `json:"response,omitempty"`
	Err        json.RawMessage `json:"err,omitempty"`
	IsDisposed bool            `json:"isDisposed"`
}

// Failed indica si el reply trae error.
func (r Reply) Failed() bool {
	s := strings.TrimSpace(string(r.Err))
	return s != "" && s != "null"
}

// RemoteError convierte el campo err en *Error. Acepta string u objeto
// {message|error, status|statusCode}; sin status queda en 0 y se normaliza a 400.
func (r Reply) RemoteError() *Error {
	if !r.Failed() {
		return nil
	}
	var s string
	if err := json.Unmarshal(r.Err, &s); err == nil {
		return Remote(0, s)
	}
	var obj map[string]any
	if err := json.Unmarshal(r.Err, &obj); err != nil {
		return Remote(0, string(r.Err))
	}
	msg := "Bad Request"
	switch m := obj["message"].(type) {
	case string:
		msg = m
	case []any:
		parts := make([]string, 0, len(m))
		for _, x := range m {
			parts = append(parts, fmt.Sprint(x))
		}
		msg = strings.Join(parts, ", ")
	default:
		if e, ok := obj["error"].(string); ok {
			msg = e
		}
	}
	return Remote(statusField(obj), msg)
}

func statusField(obj map[string]any) int {
	for _, k := range []string{"status", "statusCode"} {
		switch v := obj[k].(type) {
		case float64:
			return int(v)
		case string:
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				return n
			}
		}
	}
	return 0
}

// EncodeReply arma un reply para el lado handler. Si err != nil se serializa
// como {message, status}.
func EncodeReply(id string, response any, err error) ([]byte, error) {
	r := Reply{ID: id, IsDisposed: true}
	if err != nil {
		e := AsError(err)
		b, mErr := json.Marshal(map[string]any{"message": e.Message, "status": e.Status})
		if mErr != nil {
			return nil, mErr
		}
		r.Err = b
	} else {
		b, mErr := json.Marshal(response)
		if mErr != nil {
			return nil, mErr
		}
		r.Response = b
	}
	return json.Marshal(r)
}

type ridKey struct{}

// WithRequestID guarda el request id en el contexto.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ridKey{}, id)
}

// RequestIDFrom devuelve el request id del contexto ("" si no hay).
func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(ridKey{}).(string)
	return s
}

// EnsureRequestID genera un request id si el llamador no lo trae.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}
