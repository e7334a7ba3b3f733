package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_WireRoundTrip(t *testing.T) {
	env, err := NewEnvelope(ContributionsCreate, map[string]any{"title": "t", "authorId": 3}, Meta{RequestID: "r1"})
	require.NoError(t, err)
	require.NotEmpty(t, env.ID)

	b, err := env.MarshalWire()
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &wire))
	assert.JSONEq(t, `"contributions.create"`, string(wire["pattern"]))

	got, err := DecodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "r1", got.Meta.RequestID)
	assert.JSONEq(t, string(env.Payload), string(got.Payload))
}

func TestEnvelope_ScalarPayload(t *testing.T) {
	env, err := NewEnvelope(UsersGetByID, 42, Meta{RequestID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "42", string(env.Payload))
}

func TestReply_RemoteError(t *testing.T) {
	cases := []struct {
		raw    string
		msg    string
		status int
	}{
		{`"boom"`, "boom", 0},
		{`{"message":"User not found","status":404}`, "User not found", 404},
		{`{"message":["email must be an email","name is empty"],"statusCode":400}`, "email must be an email, name is empty", 400},
		{`{"error":"Conflict","statusCode":"409"}`, "Conflict", 409},
	}
	for _, tc := range cases {
		r := Reply{Err: json.RawMessage(tc.raw)}
		require.True(t, r.Failed())
		e := r.RemoteError()
		assert.Equal(t, tc.msg, e.Message)
		assert.Equal(t, tc.status, e.Status)
	}
	assert.Nil(t, Reply{Err: json.RawMessage("null")}.RemoteError())
}

func TestEncodeReply(t *testing.T) {
	b, err := EncodeReply("id1", nil, Remote(404, "nf"))
	require.NoError(t, err)
	var r Reply
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, "id1", r.ID)
	assert.True(t, r.IsDisposed)
	assert.Equal(t, 404, r.RemoteError().Status)

	b, err = EncodeReply("id2", map[string]int{"id": 1}, nil)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &r))
	assert.False(t, r.Failed())
	assert.JSONEq(t, `{"id":1}`, string(r.Response))
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	assert.NotEmpty(t, id)
	ctx2, id2 := EnsureRequestID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, RequestIDFrom(ctx2))
}

func TestPattern_Channel(t *testing.T) {
	for _, ch := range Channels() {
		for _, p := range Patterns(ch) {
			got, ok := p.Channel()
			require.True(t, ok, p)
			assert.Equal(t, ch, got)
		}
	}
	_, ok := Pattern("x.y").Channel()
	assert.False(t, ok)
}
