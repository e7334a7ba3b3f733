package coordinator

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gateway/internal/audit"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
	"github.com/dropDatabas3/gateway/internal/saga"
)

// Estados de la saga de creación.
const (
	StateContributionCreated saga.State = "ContributionCreated"
	StateUserAttached        saga.State = "UserAttached"
)

const sagaCreateContribution = "contribution.create"

// Principal es el usuario autenticado que origina la operación.
type Principal struct {
	ID    int64
	Name  string
	Email string
	Jti   string
}

// AuthorName: nombre, si no email, si no "Unknown author".
func (p Principal) AuthorName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	return "Unknown author"
}

type CreateContributionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
}

// CreateContribution crea la contribución y la agrega al registro del autor.
// Si el attach falla se borra la contribución creada y se devuelve el error
// del attach tal cual, aunque la compensación también falle.
func (c *Coordinator) CreateContribution(ctx context.Context, author Principal, in CreateContributionInput) (downstream.Contribution, error) {
	ctx = detach(ctx)
	if author.ID == 0 {
		return downstream.Contribution{}, rpc.NewError(http.StatusUnauthorized, "Authentication required")
	}
	log := c.log(ctx, sagaCreateContribution).With(logger.UserID(author.ID))
	log.Info("contribution.create started")

	var (
		created downstream.Contribution
		updated downstream.User
	)
	s := &saga.Saga{
		Name: sagaCreateContribution,
		Steps: []saga.Step{
			{
				Name:    "contributions.create",
				Reaches: StateContributionCreated,
				Action: func(ctx context.Context) error {
					var err error
					created, err = c.contribs.Create(ctx, downstream.CreateContribution{
						Title:       in.Title,
						Description: in.Description,
						PublishedAt: in.PublishedAt,
						AuthorID:    author.ID,
						AuthorName:  author.AuthorName(),
					})
					return err
				},
				Compensate: func(ctx context.Context) error {
					// un solo intento: un remove reintentado tras un 5xx ambiguo puede duplicarse
					_, err := c.contribs.Remove(ctx, created.ID, author.ID, rpc.WithRetries(0))
					return err
				},
			},
			{
				Name:    "users.addContribution",
				Reaches: StateUserAttached,
				Action: func(ctx context.Context) error {
					var err error
					updated, err = c.users.AddContribution(ctx, author.ID, created.ID)
					return err
				},
			},
		},
		OnCompensationFailure: func(ctx context.Context, step string, err error) {
			// sin registro durable: queda en logs y en gateway_saga_total
			log.Error("orphaned contribution left after failed compensation",
				logger.ContributionID(created.ID), logger.RequestID(rpc.RequestIDFrom(ctx)), logger.Step(step), logger.Err(err))
			audit.Log(ctx, audit.ContributionOrphan, logger.ContributionID(created.ID), logger.UserID(author.ID), logger.Step(step), logger.Err(err))
		},
	}

	res, err := s.Run(ctx)
	if err != nil {
		log.Info("contribution.create failed", logger.String("state", string(res.Final())), logger.Err(err))
		return downstream.Contribution{}, err
	}

	// write-then-cache: solo después de que ambos servicios confirmaron
	c.writeUserCache(ctx, updated)
	if err := c.cc.PutEntity(ctx, idKey(created.ID), created, 0); err != nil {
		log.Warn("contribution cache write failed", logger.ContributionID(created.ID), logger.Err(err))
	}
	c.bumpContributions(ctx)
	log.Info("contribution.create done", logger.ContributionID(created.ID))
	audit.Log(ctx, audit.ContributionCreated, logger.ContributionID(created.ID), logger.UserID(author.ID))
	return created, nil
}

// GetContribution es read-through sobre contributions:id:<id>.
func (c *Coordinator) GetContribution(ctx context.Context, id int64) (downstream.Contribution, error) {
	return c.cc.FetchEntity(ctx, idKey(id), func(ctx context.Context) (downstream.Contribution, error) {
		return c.contribs.GetByID(ctx, id)
	})
}

// ListContributions es read-through sobre la key de lista versionada.
func (c *Coordinator) ListContributions(ctx context.Context, q downstream.ListContributionsQuery) (downstream.ContributionList, error) {
	return c.cc.FetchList(ctx, q.Values(), func(ctx context.Context) (downstream.ContributionList, error) {
		return c.contribs.GetAll(ctx, q)
	})
}

// UpdateContribution: update downstream, sobreescribe la entidad y cambia la versión de listas.
func (c *Coordinator) UpdateContribution(ctx context.Context, actor Principal, id int64, in downstream.UpdateContribution) (downstream.Contribution, error) {
	ctx = detach(ctx)
	log := c.log(ctx, "contribution.update").With(logger.UserID(actor.ID), logger.ContributionID(id))
	updated, err := c.contribs.Update(ctx, id, in, actor.ID)
	if err != nil {
		log.Info("contribution.update failed", logger.Err(err))
		return downstream.Contribution{}, err
	}
	if err := c.cc.PutEntity(ctx, idKey(id), updated, 0); err != nil {
		log.Warn("contribution cache write failed", logger.Err(err))
	}
	c.bumpContributions(ctx)
	log.Info("contribution.update done")
	return updated, nil
}

// RemoveContribution borra la contribución y después la desvincula del autor.
// Un fallo al desvincular no bloquea el borrado: se loguea y la entrada de
// cache se desaloja igual.
func (c *Coordinator) RemoveContribution(ctx context.Context, actor Principal, id int64) (downstream.Removed, error) {
	ctx = detach(ctx)
	log := c.log(ctx, "contribution.remove").With(logger.UserID(actor.ID), logger.ContributionID(id))
	removed, err := c.contribs.Remove(ctx, id, actor.ID)
	if err != nil {
		log.Info("contribution.remove failed", logger.Err(err))
		return downstream.Removed{}, err
	}

	if u, err := c.users.RemoveContribution(ctx, actor.ID, id); err != nil {
		log.Warn("detach from author failed; contribution removed anyway", logger.Err(err))
	} else {
		c.writeUserCache(ctx, u)
	}

	if err := c.cc.InvalidateEntity(ctx, idKey(id)); err != nil {
		log.Warn("contribution cache evict failed", logger.Err(err))
	}
	c.bumpContributions(ctx)
	log.Info("contribution.remove done")
	return removed, nil
}

func (c *Coordinator) bumpContributions(ctx context.Context) {
	if err := c.cc.BumpListVersion(ctx); err != nil {
		// las listas viejas siguen sirviéndose hasta su TTL
		c.log(ctx, "contribution.bump").Error("list version bump failed", logger.Err(err))
	}
}
