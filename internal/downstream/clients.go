// Package downstream tiene los clientes tipados de los servicios de back-end
// (auth, users, contributions). Cada método es un patrón RPC con su payload.
package downstream

import (
	"context"

	"github.com/dropDatabas3/gateway/internal/rpc"
)

// ─── Auth ───

type Auth struct{ c *rpc.Client }

func NewAuth(c *rpc.Client) *Auth { return &Auth{c: c} }

// GenerateTokens emite el par de tokens para un usuario recién creado.
func (a *Auth) GenerateTokens(ctx context.Context, u User, password string) (Tokens, error) {
	return rpc.Call[Tokens](ctx, a.c, rpc.AuthGenerateTokens, map[string]any{"user": u, "password": password})
}

// AuthByPassword verifica credenciales y emite tokens.
func (a *Auth) AuthByPassword(ctx context.Context, u User, password string) (Tokens, error) {
	return rpc.Call[Tokens](ctx, a.c, rpc.AuthByPassword, map[string]any{"user": u, "password": password})
}

// ValidateAccess delega la verificación del access token al servicio de auth.
func (a *Auth) ValidateAccess(ctx context.Context, token string) (AccessClaims, error) {
	return rpc.Call[AccessClaims](ctx, a.c, rpc.AuthValidateAccess, map[string]any{"token": token})
}

func (a *Auth) RemoveToken(ctx context.Context, userID int64) error {
	return a.c.Send(ctx, rpc.ChannelAuth, rpc.AuthRemoveToken, map[string]any{"userId": userID}, nil)
}

// ─── Users ───

type Users struct{ c *rpc.Client }

func NewUsers(c *rpc.Client) *Users { return &Users{c: c} }

func (s *Users) Create(ctx context.Context, in CreateUser) (User, error) {
	u, err := rpc.Call[User](ctx, s.c, rpc.UsersCreate, map[string]any{"createUserDto": in})
	return u.withSub(), err
}

// GetByEmail devuelve nil si no existe.
func (s *Users) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := rpc.Call[*User](ctx, s.c, rpc.UsersGetByEmail, map[string]any{"email": email})
	if err != nil || u == nil {
		return nil, err
	}
	out := u.withSub()
	return &out, nil
}

func (s *Users) GetAll(ctx context.Context) ([]User, error) {
	list, err := rpc.Call[[]User](ctx, s.c, rpc.UsersGetAll, map[string]any{})
	for i := range list {
		list[i] = list[i].withSub()
	}
	return list, err
}

func (s *Users) GetByID(ctx context.Context, id int64) (User, error) {
	u, err := rpc.Call[User](ctx, s.c, rpc.UsersGetByID, map[string]any{"id": id})
	return u.withSub(), err
}

func (s *Users) Update(ctx context.Context, in UpdateUser) (User, error) {
	u, err := rpc.Call[User](ctx, s.c, rpc.UsersUpdate, map[string]any{"updateUserDto": in})
	return u.withSub(), err
}

func (s *Users) Remove(ctx context.Context, id int64) (Removed, error) {
	return rpc.Call[Removed](ctx, s.c, rpc.UsersRemove, map[string]any{"id": id})
}

// AddContribution agrega contributionID al registro del autor y devuelve el registro actualizado.
func (s *Users) AddContribution(ctx context.Context, userID, contributionID int64) (User, error) {
	u, err := rpc.Call[User](ctx, s.c, rpc.UsersAddContribution, map[string]any{"userId": userID, "contributionId": contributionID})
	return u.withSub(), err
}

func (s *Users) RemoveContribution(ctx context.Context, userID, contributionID int64) (User, error) {
	u, err := rpc.Call[User](ctx, s.c, rpc.UsersRemoveContribution, map[string]any{"userId": userID, "contributionId": contributionID})
	return u.withSub(), err
}

// ─── Contributions ───

type Contributions struct{ c *rpc.Client }

func NewContributions(c *rpc.Client) *Contributions { return &Contributions{c: c} }

func (s *Contributions) Create(ctx context.Context, in CreateContribution) (Contribution, error) {
	return rpc.Call[Contribution](ctx, s.c, rpc.ContributionsCreate, map[string]any{"createContributionDto": in})
}

func (s *Contributions) GetAll(ctx context.Context, q ListContributionsQuery) (ContributionList, error) {
	return rpc.Call[ContributionList](ctx, s.c, rpc.ContributionsGetAll, map[string]any{"query": q})
}

func (s *Contributions) GetByID(ctx context.Context, id int64) (Contribution, error) {
	return rpc.Call[Contribution](ctx, s.c, rpc.ContributionsGetByID, map[string]any{"id": id})
}

func (s *Contributions) Update(ctx context.Context, id int64, in UpdateContribution, actorID int64) (Contribution, error) {
	return rpc.Call[Contribution](ctx, s.c, rpc.ContributionsUpdate, map[string]any{"id": id, "updateContributionDto": in, "actorId": actorID})
}

// Remove acepta opciones por llamada: la compensación de la saga va sin reintentos.
func (s *Contributions) Remove(ctx context.Context, id, actorID int64, opts ...rpc.Option) (Removed, error) {
	return rpc.Call[Removed](ctx, s.c, rpc.ContributionsRemove, map[string]any{"id": id, "actorId": actorID}, opts...)
}
