package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gateway/internal/coordinator"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/http/controllers"
	mw "github.com/dropDatabas3/gateway/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/gateway/internal/jwt"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

type fakeFlows struct {
	mu         sync.Mutex
	registerFn func(ctx context.Context, in coordinator.RegisterInput) (coordinator.AuthResult, error)
	createFn   func(ctx context.Context, p coordinator.Principal, in coordinator.CreateContributionInput) (downstream.Contribution, error)
	getFn      func(ctx context.Context, id int64) (downstream.Contribution, error)
	listQuery  *downstream.ListContributionsQuery
	loggedOut  []string
	lastRID    string
}

func (f *fakeFlows) Register(ctx context.Context, in coordinator.RegisterInput) (coordinator.AuthResult, error) {
	f.mu.Lock()
	f.lastRID = rpc.RequestIDFrom(ctx)
	f.mu.Unlock()
	return f.registerFn(ctx, in)
}

func (f *fakeFlows) Login(_ context.Context, in coordinator.LoginInput) (coordinator.AuthResult, error) {
	return coordinator.AuthResult{User: downstream.User{ID: 1, Email: in.Email}, Tokens: downstream.Tokens{RefreshToken: "rt"}}, nil
}

func (f *fakeFlows) Logout(_ context.Context, _ int64, jtis ...string) error {
	f.loggedOut = append(f.loggedOut, jtis...)
	return nil
}

func (f *fakeFlows) GetUser(_ context.Context, id int64) (downstream.User, error) {
	return downstream.User{ID: id}, nil
}

func (f *fakeFlows) ListUsers(context.Context) ([]downstream.User, error) { return nil, nil }

func (f *fakeFlows) UpdateUser(_ context.Context, actor coordinator.Principal, id int64, in downstream.UpdateUser) (downstream.User, error) {
	if actor.ID != id {
		return downstream.User{}, rpc.NewError(http.StatusForbidden, "Forbidden")
	}
	u := downstream.User{ID: id}
	if in.Name != nil {
		u.Name = *in.Name
	}
	return u, nil
}

func (f *fakeFlows) RemoveUser(_ context.Context, _ coordinator.Principal, id int64) (downstream.Removed, error) {
	return downstream.Removed{ID: id}, nil
}

func (f *fakeFlows) CreateContribution(ctx context.Context, p coordinator.Principal, in coordinator.CreateContributionInput) (downstream.Contribution, error) {
	return f.createFn(ctx, p, in)
}

func (f *fakeFlows) GetContribution(ctx context.Context, id int64) (downstream.Contribution, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return downstream.Contribution{ID: id}, nil
}

func (f *fakeFlows) ListContributions(_ context.Context, q downstream.ListContributionsQuery) (downstream.ContributionList, error) {
	f.listQuery = &q
	return downstream.ContributionList{Items: []downstream.Contribution{}, Page: q.Page, Limit: q.Limit}, nil
}

func (f *fakeFlows) UpdateContribution(_ context.Context, _ coordinator.Principal, id int64, _ downstream.UpdateContribution) (downstream.Contribution, error) {
	return downstream.Contribution{ID: id}, nil
}

func (f *fakeFlows) RemoveContribution(_ context.Context, _ coordinator.Principal, id int64) (downstream.Removed, error) {
	return downstream.Removed{ID: id}, nil
}

type fakeVerifier map[string]jwtx.Claims

func (v fakeVerifier) Verify(_ context.Context, token string) (jwtx.Claims, error) {
	switch token {
	case "expired":
		return jwtx.Claims{}, jwtx.ErrExpired
	case "upstream-down":
		return jwtx.Claims{}, fmt.Errorf("validate: %w", rpc.ErrTimeout)
	}
	c, ok := v[token]
	if !ok {
		return jwtx.Claims{}, fmt.Errorf("%w: signature is invalid", jwtx.ErrInvalid)
	}
	return c, nil
}

type fakeSessions map[string]bool

func (s fakeSessions) IsSessionActive(_ context.Context, jti string) (bool, error) {
	if jti == "broken" {
		return false, errors.New("redis down")
	}
	return s[jti], nil
}

func newTestRouter(t *testing.T, f *fakeFlows, checks ...controllers.Check) http.Handler {
	t.Helper()
	verifier := fakeVerifier{
		"good":    {UserID: 7, Name: "Ada", Email: "ada@example.com", Jti: "j-good"},
		"revoked": {UserID: 7, Jti: "j-revoked"},
		"flaky":   {UserID: 7, Jti: "broken"},
	}
	sessions := fakeSessions{"j-good": true}
	return New(Deps{
		Controllers: controllers.New(controllers.Deps{Auth: f, Users: f, Contributions: f, Checks: checks}),
		Auth:        mw.RequireAuth(verifier, sessions),
		Prefix:      "api/v1",
	})
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errBody {
	t.Helper()
	var b errBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

const validRegistration = `{"email":"a@b.co","name":"A","password":"secret1"}`

func TestRegistration_SetsCookieAndRequestID(t *testing.T) {
	f := &fakeFlows{registerFn: func(_ context.Context, in coordinator.RegisterInput) (coordinator.AuthResult, error) {
		return coordinator.AuthResult{
			User:   downstream.User{ID: 1, Sub: 1, Email: in.Email},
			Tokens: downstream.Tokens{AccessToken: "at", RefreshToken: "rt-1"},
		}, nil
	}}
	h := newTestRouter(t, f)

	rec := do(h, http.MethodPost, "/api/v1/user/registration", `{"email":"a@b.co","password":"secret1"}`,
		map[string]string{"X-Request-Id": "rid-123"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "rid-123", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "rid-123", f.lastRID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refreshToken", cookies[0].Name)
	assert.Equal(t, "rt-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	var res coordinator.AuthResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "a@b.co", res.User.Email)
}

func TestRegistration_GeneratesRequestID(t *testing.T) {
	f := &fakeFlows{registerFn: func(context.Context, coordinator.RegisterInput) (coordinator.AuthResult, error) {
		return coordinator.AuthResult{}, nil
	}}
	rec := do(newTestRouter(t, f), http.MethodPost, "/api/v1/user/registration", validRegistration, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rid := rec.Header().Get("X-Request-Id")
	assert.NotEmpty(t, rid)
	assert.Equal(t, rid, f.lastRID)
}

func TestErrorContract(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		reason  string
		message string
	}{
		{"conflict", rpc.Conflict("Registration in progress for this email"), 409, "CONFLICT", "Registration in progress for this email"},
		{"remote 404", rpc.Remote(404, "User not found"), 404, "NOT_FOUND", "User not found"},
		{"timeout", fmt.Errorf("call: %w", rpc.ErrTimeout), 504, "GATEWAY_TIMEOUT", ""},
		{"transport", fmt.Errorf("dial: %w", rpc.ErrTransport), 502, "BAD_GATEWAY", ""},
		{"plain", errors.New("boom"), 400, "BAD_REQUEST", "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeFlows{registerFn: func(context.Context, coordinator.RegisterInput) (coordinator.AuthResult, error) {
				return coordinator.AuthResult{}, tc.err
			}}
			rec := do(newTestRouter(t, f), http.MethodPost, "/api/v1/user/registration", validRegistration, nil)
			require.Equal(t, tc.status, rec.Code)
			b := decodeErr(t, rec)
			assert.Equal(t, tc.status, b.StatusCode)
			assert.Equal(t, tc.reason, b.Error)
			if tc.message != "" {
				assert.Equal(t, tc.message, b.Message)
			}
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestAuthGuard(t *testing.T) {
	f := &fakeFlows{createFn: func(_ context.Context, p coordinator.Principal, in coordinator.CreateContributionInput) (downstream.Contribution, error) {
		return downstream.Contribution{ID: 42, Title: in.Title, AuthorID: p.ID, AuthorName: p.AuthorName()}, nil
	}}
	h := newTestRouter(t, f)
	body := `{"title":"t","description":"d"}`

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer expired", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusForbidden},
		{"revoked session", "Bearer revoked", http.StatusUnauthorized},
		{"remote verifier down", "Bearer upstream-down", http.StatusGatewayTimeout},
		{"session store down fails open", "Bearer flaky", http.StatusCreated},
		{"ok", "Bearer good", http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hdr := map[string]string{}
			if tc.header != "" {
				hdr["Authorization"] = tc.header
			}
			rec := do(h, http.MethodPost, "/api/v1/contribution", body, hdr)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	rec := do(h, http.MethodPost, "/api/v1/contribution", body, map[string]string{"Authorization": "Bearer good"})
	var c downstream.Contribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, int64(7), c.AuthorID)
	assert.Equal(t, "Ada", c.AuthorName)
}

func TestPublicReads(t *testing.T) {
	f := &fakeFlows{}
	h := newTestRouter(t, f)

	rec := do(h, http.MethodGet, "/api/v1/contribution/5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/contribution/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/contribution?page=2&limit=10&authorId=7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.listQuery)
	assert.Equal(t, 2, f.listQuery.Page)
	assert.Equal(t, 10, f.listQuery.Limit)
	assert.Equal(t, int64(7), f.listQuery.AuthorID)

	rec = do(h, http.MethodGet, "/api/v1/contribution?limit=1000", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/user", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeErr(t, rec).Error)
}

func TestUserSelfRoutes(t *testing.T) {
	f := &fakeFlows{}
	h := newTestRouter(t, f)
	auth := map[string]string{"Authorization": "Bearer good"}

	rec := do(h, http.MethodPatch, "/api/v1/user/7", `{"name":"Ada L"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u downstream.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "Ada L", u.Name)

	rec = do(h, http.MethodPatch, "/api/v1/user/8", `{"name":"x"}`, auth)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodDelete, "/api/v1/user/7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	f := &fakeFlows{}
	h := newTestRouter(t, f)

	rec := do(h, http.MethodPost, "/api/v1/user/logout", `{"refreshJti":"r-1"}`, map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"j-good", "r-1"}, f.loggedOut)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestReadyz(t *testing.T) {
	ok := controllers.Check{Name: "cache", Ping: func(context.Context) error { return nil }}
	down := controllers.Check{Name: "broker", Ping: func(context.Context) error { return errors.New("closed") }}

	rec := do(newTestRouter(t, &fakeFlows{}, ok), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newTestRouter(t, &fakeFlows{}, ok, down), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"broker":"closed"`)
}

func TestRecover(t *testing.T) {
	f := &fakeFlows{getFn: func(context.Context, int64) (downstream.Contribution, error) {
		panic("boom")
	}}
	rec := do(newTestRouter(t, f), http.MethodGet, "/api/v1/contribution/1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", decodeErr(t, rec).Error)
}

func TestNoGuardClosesProtectedRoutes(t *testing.T) {
	h := New(Deps{Controllers: controllers.New(controllers.Deps{Auth: &fakeFlows{}, Users: &fakeFlows{}, Contributions: &fakeFlows{}})})
	rec := do(h, http.MethodDelete, "/contribution/1", "", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(h, http.MethodGet, "/contribution/1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitOnlyOnCredentialRoutes(t *testing.T) {
	f := &fakeFlows{registerFn: func(context.Context, coordinator.RegisterInput) (coordinator.AuthResult, error) {
		return coordinator.AuthResult{}, nil
	}}
	limited := 0
	h := New(Deps{
		Controllers: controllers.New(controllers.Deps{Auth: f, Users: f, Contributions: f}),
		RateLimit: func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				limited++
				w.WriteHeader(http.StatusTooManyRequests)
			})
		},
	})

	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/user/registration", `{}`, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/user/login", `{}`, nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/contribution/1", "", nil).Code)
	assert.Equal(t, 2, limited)
}

func TestCredentialValidation(t *testing.T) {
	called := false
	f := &fakeFlows{registerFn: func(context.Context, coordinator.RegisterInput) (coordinator.AuthResult, error) {
		called = true
		return coordinator.AuthResult{}, nil
	}}
	h := newTestRouter(t, f)

	rec := do(h, http.MethodPost, "/api/v1/user/registration", `{"email":"nope","password":"123"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	b := decodeErr(t, rec)
	assert.Equal(t, "BAD_REQUEST", b.Error)
	assert.Contains(t, b.Message, "email must be an email")
	assert.Contains(t, b.Message, "password must be between 6 and 16 characters")
	assert.False(t, called)

	rec = do(h, http.MethodPost, "/api/v1/user/login", `{"email":"a@b.co"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/user/login", `{"email":"a@b.co","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
