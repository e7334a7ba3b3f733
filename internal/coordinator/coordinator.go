// Package coordinator orquesta las operaciones multi-servicio del gateway:
// registro/login con lock de idempotencia, la saga de creación de
// contribuciones y las lecturas read-through.
//
// Las escrituras corren sobre un contexto desacoplado de la cancelación del
// request HTTP: una vez iniciada, una operación (y su compensación) termina o
// vence por el timeout del cliente RPC.
package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/readthrough"
	"github.com/dropDatabas3/gateway/internal/rpc"
	"github.com/dropDatabas3/gateway/internal/session"
	"go.uber.org/zap"
)

// AuthService es el servicio de emisión de tokens.
type AuthService interface {
	GenerateTokens(ctx context.Context, u downstream.User, password string) (downstream.Tokens, error)
	AuthByPassword(ctx context.Context, u downstream.User, password string) (downstream.Tokens, error)
	RemoveToken(ctx context.Context, userID int64) error
}

// UserService es el servicio de registros de usuario.
type UserService interface {
	Create(ctx context.Context, in downstream.CreateUser) (downstream.User, error)
	GetByEmail(ctx context.Context, email string) (*downstream.User, error)
	GetAll(ctx context.Context) ([]downstream.User, error)
	GetByID(ctx context.Context, id int64) (downstream.User, error)
	Update(ctx context.Context, in downstream.UpdateUser) (downstream.User, error)
	Remove(ctx context.Context, id int64) (downstream.Removed, error)
	AddContribution(ctx context.Context, userID, contributionID int64) (downstream.User, error)
	RemoveContribution(ctx context.Context, userID, contributionID int64) (downstream.User, error)
}

// ContributionService es el servicio de contribuciones.
type ContributionService interface {
	Create(ctx context.Context, in downstream.CreateContribution) (downstream.Contribution, error)
	GetAll(ctx context.Context, q downstream.ListContributionsQuery) (downstream.ContributionList, error)
	GetByID(ctx context.Context, id int64) (downstream.Contribution, error)
	Update(ctx context.Context, id int64, in downstream.UpdateContribution, actorID int64) (downstream.Contribution, error)
	Remove(ctx context.Context, id, actorID int64, opts ...rpc.Option) (downstream.Removed, error)
}

type (
	userLayer    = readthrough.Layer[downstream.User, []downstream.User]
	contribLayer = readthrough.Layer[downstream.Contribution, downstream.ContributionList]
)

// Deps agrupa los colaboradores; todos los construye el composition root.
type Deps struct {
	Auth          AuthService
	Users         UserService
	Contributions ContributionService
	Locker        *lock.Locker
	Sessions      *session.Tracker
	UserCache     *userLayer
	ContribCache  *contribLayer
	UserTTL       time.Duration
}

type Coordinator struct {
	auth     AuthService
	users    UserService
	contribs ContributionService
	locker   *lock.Locker
	sessions *session.Tracker
	uc       *userLayer
	cc       *contribLayer
	userTTL  time.Duration
}

// Nombres de recurso de las capas de cache.
const (
	ResourceUsers         = "user"
	ResourceContributions = "contributions"
)

const DefaultUserTTL = 30 * time.Minute

// NewUserCache arma la capa de usuarios (user:id:<id>, user:email:<email>).
func NewUserCache(store cache.Client, ttl time.Duration) *userLayer {
	return readthrough.New[downstream.User, []downstream.User](store, ResourceUsers, ttl)
}

// NewContributionCache arma la capa de contribuciones.
func NewContributionCache(store cache.Client, ttl time.Duration) *contribLayer {
	return readthrough.New[downstream.Contribution, downstream.ContributionList](store, ResourceContributions, ttl)
}

func New(d Deps) *Coordinator {
	if d.UserTTL <= 0 {
		d.UserTTL = DefaultUserTTL
	}
	return &Coordinator{
		auth:     d.Auth,
		users:    d.Users,
		contribs: d.Contributions,
		locker:   d.Locker,
		sessions: d.Sessions,
		uc:       d.UserCache,
		cc:       d.ContribCache,
		userTTL:  d.UserTTL,
	}
}

// detach desacopla ctx de la cancelación del request y fija el request id:
// todos los RPC, el lock y los logs de una operación comparten el mismo.
func detach(ctx context.Context) context.Context {
	ctx = context.WithoutCancel(ctx)
	if rpc.RequestIDFrom(ctx) != "" {
		return ctx
	}
	ctx, rid := rpc.EnsureRequestID(ctx)
	return logger.With(ctx, logger.RequestID(rid))
}

func (c *Coordinator) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(logger.Component("coordinator"), logger.Op(op))
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

// writeUserCache guarda el registro por id y por email. Best-effort: el
// downstream ya es la fuente de verdad.
func (c *Coordinator) writeUserCache(ctx context.Context, u downstream.User) {
	if u.ID == 0 {
		return
	}
	log := c.log(ctx, "user.cache")
	if err := c.uc.PutEntity(ctx, idKey(u.ID), u, c.userTTL); err != nil {
		log.Warn("user cache write failed", logger.UserID(u.ID), logger.Err(err))
	}
	if u.Email != "" {
		if err := c.uc.PutBy(ctx, "email", lock.NormalizeEmail(u.Email), u, c.userTTL); err != nil {
			log.Warn("user cache write failed", logger.UserID(u.ID), logger.Err(err))
		}
	}
}
