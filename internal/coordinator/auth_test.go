package coordinator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	h := newHarness(t)
	h.users.gate = make(chan struct{})
	h.users.entered = make(chan struct{}, 4)

	in := RegisterInput{Email: "user@example.com", Name: "U", Password: "secret1"}

	var (
		wg       sync.WaitGroup
		firstRes AuthResult
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRes, firstErr = h.c.Register(context.Background(), in)
	}()
	<-h.users.entered // el primero tiene el lock y está en users.create

	_, err := h.c.Register(context.Background(), RegisterInput{Email: " USER@example.com", Password: "x"})
	require.Error(t, err)
	assert.True(t, lock.IsHeld(err))
	re := rpc.AsError(err)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, "Registration in progress for this email", re.Message)

	close(h.users.gate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "user@example.com", firstRes.User.Email)
	assert.Equal(t, 1, h.users.creates)

	// liberado: el tercero adquiere el lock (y choca con el email ya registrado)
	_, err = h.c.Register(context.Background(), in)
	require.Error(t, err)
	assert.False(t, lock.IsHeld(err))
	assert.Equal(t, "User with this email already exists", rpc.AsError(err).Message)
}

func TestRegister_PopulatesCacheAndSessions(t *testing.T) {
	ctx := rpc.WithRequestID(context.Background(), "rid-reg")
	h := newHarness(t)

	res, err := h.c.Register(ctx, RegisterInput{Email: "New@Example.com", Name: " N ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", res.User.Email)
	assert.Equal(t, "N", res.User.Name)

	_, ok := h.c.uc.GetBy(ctx, "email", "new@example.com")
	assert.True(t, ok)
	_, ok = h.c.uc.GetEntity(ctx, idKey(res.User.ID))
	assert.True(t, ok)

	for _, jti := range []string{res.Tokens.AccessJti, res.Tokens.RefreshJti} {
		active, err := h.sessions.IsSessionActive(ctx, jti)
		require.NoError(t, err)
		assert.True(t, active, jti)
	}
	online, _ := h.sessions.IsOnline(ctx, res.User.ID)
	assert.True(t, online)
	uid, found, _ := h.sessions.UserForRequest(ctx, "rid-reg")
	assert.True(t, found)
	assert.Equal(t, res.User.ID, uid)

	// lock liberado
	ok2, err := lock.New(h.store, 0).Acquire(ctx, lock.RegistrationKey("new@example.com"), "t", 0)
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestRegister_DownstreamConflictSurfaced(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Create(context.Background(), downstream.CreateUser{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = h.c.Register(context.Background(), RegisterInput{Email: "dup@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, rpc.StatusOf(err))
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.c.Register(ctx, RegisterInput{Email: "l@example.com", Name: "L", Password: "secret1"})
	require.NoError(t, err)

	_, err = h.c.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rpc.StatusOf(err))
	assert.Equal(t, "Invalid credentials", rpc.AsError(err).Message)

	_, err = h.c.Login(ctx, LoginInput{Email: "l@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rpc.StatusOf(err))

	res, err := h.c.Login(ctx, LoginInput{Email: " L@example.com", Password: "secret1"})
	require.NoError(t, err)
	active, _ := h.sessions.IsSessionActive(ctx, res.Tokens.AccessJti)
	assert.True(t, active)

	_, err = h.c.Login(ctx, LoginInput{Email: "l@example.com"})
	assert.Equal(t, http.StatusBadRequest, rpc.StatusOf(err))
}

func TestLogin_AuthErrorReleasesLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.c.Register(ctx, RegisterInput{Email: "e@example.com", Password: "secret1"})
	require.NoError(t, err)
	h.auth.authErr = errors.New("boom")

	_, err = h.c.Login(ctx, LoginInput{Email: "e@example.com", Password: "secret1"})
	require.Error(t, err)
	ok, _ := lock.New(h.store, 0).Acquire(ctx, lock.LoginKey("e@example.com"), "t", 0)
	assert.True(t, ok)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res, err := h.c.Register(ctx, RegisterInput{Email: "o@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, h.c.Logout(ctx, res.User.ID, res.Tokens.AccessJti, res.Tokens.RefreshJti))
	for _, jti := range []string{res.Tokens.AccessJti, res.Tokens.RefreshJti} {
		active, _ := h.sessions.IsSessionActive(ctx, jti)
		assert.False(t, active)
	}
	assert.Equal(t, []int64{res.User.ID}, h.auth.removed)
}

func TestLogout_SkipsForeignSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, err := h.c.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	b, err := h.c.Register(ctx, RegisterInput{Email: "b@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEqual(t, a.User.ID, b.User.ID)

	require.NoError(t, h.c.Logout(ctx, a.User.ID, a.Tokens.AccessJti, b.Tokens.RefreshJti))

	active, _ := h.sessions.IsSessionActive(ctx, a.Tokens.AccessJti)
	assert.False(t, active)
	active, _ = h.sessions.IsSessionActive(ctx, b.Tokens.RefreshJti)
	assert.True(t, active, "refresh de otro usuario no se revoca")
}

func TestRegister_LockStoreDown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	_, err := h.c.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.False(t, lock.IsHeld(err))

	re := rpc.AsError(err)
	assert.Equal(t, http.StatusServiceUnavailable, re.Status)
	assert.True(t, re.Transient)
	assert.NotContains(t, re.Message, "user@example.com")
	assert.Zero(t, h.users.creates)
}

func TestRegister_LockHolderIsRequestID(t *testing.T) {
	for _, tc := range []struct {
		name string
		ctx  context.Context
	}{
		{"generated", context.Background()},
		{"from caller", rpc.WithRequestID(context.Background(), "rid-77")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.users.gate = make(chan struct{})
			h.users.entered = make(chan struct{}, 1)

			done := make(chan error, 1)
			go func() {
				_, err := h.c.Register(tc.ctx, RegisterInput{Email: "holder@example.com", Password: "secret1"})
				done <- err
			}()
			<-h.users.entered

			holder, err := h.store.Get(context.Background(), lock.RegistrationKey("holder@example.com"))
			close(h.users.gate)
			require.NoError(t, <-done)
			require.NoError(t, err)

			if rid := rpc.RequestIDFrom(tc.ctx); rid != "" {
				assert.Equal(t, rid, holder)
			} else {
				_, perr := uuid.Parse(holder)
				assert.NoError(t, perr, "holder %q", holder)
			}
		})
	}
}
