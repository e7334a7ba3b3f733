package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/rpc"
	"github.com/dropDatabas3/gateway/internal/session"
)

type fakeAuth struct {
	mu      sync.Mutex
	removed []int64
	authErr error
}

func (f *fakeAuth) tokens(u downstream.User) downstream.Tokens {
	return downstream.Tokens{
		AccessToken: "at", RefreshToken: "rt",
		AccessJti: "a-" + idKey(u.ID), RefreshJti: "r-" + idKey(u.ID),
		AccessTTLSec: 900, RefreshTTLSec: 3600,
	}
}

func (f *fakeAuth) GenerateTokens(_ context.Context, u downstream.User, _ string) (downstream.Tokens, error) {
	return f.tokens(u), nil
}

func (f *fakeAuth) AuthByPassword(_ context.Context, u downstream.User, password string) (downstream.Tokens, error) {
	if f.authErr != nil {
		return downstream.Tokens{}, f.authErr
	}
	if password != "secret1" {
		return downstream.Tokens{}, rpc.Remote(401, "Invalid credentials")
	}
	return f.tokens(u), nil
}

func (f *fakeAuth) RemoveToken(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return nil
}

type fakeUsers struct {
	mu       sync.Mutex
	byID     map[int64]downstream.User
	nextID   int64
	creates  int
	gets     int
	gate     chan struct{} // si no es nil, Create espera
	entered  chan struct{}
	attachFn func(userID, contributionID int64) (downstream.User, error)
	detachFn func(userID, contributionID int64) (downstream.User, error)
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]downstream.User{}, nextID: 1}
}

func (f *fakeUsers) Create(_ context.Context, in downstream.CreateUser) (downstream.User, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	for _, u := range f.byID {
		if u.Email == in.Email {
			return downstream.User{}, rpc.Remote(409, "User with this email already exists")
		}
	}
	u := downstream.User{ID: f.nextID, Sub: f.nextID, Name: in.Name, Email: in.Email, ContributionIDs: []int64{}}
	f.byID[u.ID] = u
	f.nextID++
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*downstream.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetAll(context.Context) ([]downstream.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]downstream.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (downstream.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	u, ok := f.byID[id]
	if !ok {
		return downstream.User{}, rpc.Remote(404, "User not found")
	}
	return u, nil
}

func (f *fakeUsers) Update(_ context.Context, in downstream.UpdateUser) (downstream.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[in.ID]
	if !ok {
		return downstream.User{}, rpc.Remote(404, "User not found")
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) Remove(_ context.Context, id int64) (downstream.Removed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return downstream.Removed{ID: id}, nil
}

func (f *fakeUsers) AddContribution(_ context.Context, userID, contributionID int64) (downstream.User, error) {
	if f.attachFn != nil {
		return f.attachFn(userID, contributionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.ContributionIDs = append(u.ContributionIDs, contributionID)
	f.byID[userID] = u
	return u, nil
}

func (f *fakeUsers) RemoveContribution(_ context.Context, userID, contributionID int64) (downstream.User, error) {
	if f.detachFn != nil {
		return f.detachFn(userID, contributionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	ids := u.ContributionIDs[:0]
	for _, id := range u.ContributionIDs {
		if id != contributionID {
			ids = append(ids, id)
		}
	}
	u.ContributionIDs = ids
	f.byID[userID] = u
	return u, nil
}

type fakeContribs struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]downstream.Contribution
	getAlls   int
	gets      int
	removes   []int64
	removeErr error
	createErr error
}

func newFakeContribs(firstID int64) *fakeContribs {
	return &fakeContribs{nextID: firstID, byID: map[int64]downstream.Contribution{}}
}

func (f *fakeContribs) Create(_ context.Context, in downstream.CreateContribution) (downstream.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return downstream.Contribution{}, f.createErr
	}
	c := downstream.Contribution{ID: f.nextID, Title: in.Title, Description: in.Description, PublishedAt: in.PublishedAt, AuthorID: in.AuthorID, AuthorName: in.AuthorName}
	f.byID[c.ID] = c
	f.nextID++
	return c, nil
}

func (f *fakeContribs) GetAll(_ context.Context, q downstream.ListContributionsQuery) (downstream.ContributionList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getAlls++
	out := downstream.ContributionList{Page: q.Page, Limit: q.Limit}
	for _, c := range f.byID {
		out.Items = append(out.Items, c)
	}
	out.Total = len(out.Items)
	return out, nil
}

func (f *fakeContribs) GetByID(_ context.Context, id int64) (downstream.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	c, ok := f.byID[id]
	if !ok {
		return downstream.Contribution{}, rpc.Remote(404, "Contribution not found")
	}
	return c, nil
}

func (f *fakeContribs) Update(_ context.Context, id int64, in downstream.UpdateContribution, actorID int64) (downstream.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return downstream.Contribution{}, rpc.Remote(404, "Contribution not found")
	}
	if c.AuthorID != actorID {
		return downstream.Contribution{}, rpc.Remote(403, "Forbidden")
	}
	if in.Title != nil {
		c.Title = *in.Title
	}
	f.byID[id] = c
	return c, nil
}

func (f *fakeContribs) Remove(_ context.Context, id, _ int64, _ ...rpc.Option) (downstream.Removed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, id)
	if f.removeErr != nil {
		return downstream.Removed{}, f.removeErr
	}
	delete(f.byID, id)
	return downstream.Removed{ID: id}, nil
}

type harness struct {
	c        *Coordinator
	store    cache.Client
	auth     *fakeAuth
	users    *fakeUsers
	contribs *fakeContribs
	sessions *session.Tracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := cache.NewMemory("gw")
	t.Cleanup(func() { _ = store.Close() })
	h := &harness{
		store:    store,
		auth:     &fakeAuth{},
		users:    newFakeUsers(),
		contribs: newFakeContribs(42),
		sessions: session.New(store, 0, 0),
	}
	h.c = New(Deps{
		Auth:          h.auth,
		Users:         h.users,
		Contributions: h.contribs,
		Locker:        lock.New(store, 0),
		Sessions:      h.sessions,
		UserCache:     NewUserCache(store, time.Minute),
		ContribCache:  NewContributionCache(store, time.Minute),
	})
	return h
}
