package coordinator

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

// GetUser es read-through sobre user:id:<id>.
func (c *Coordinator) GetUser(ctx context.Context, id int64) (downstream.User, error) {
	u, err := c.uc.FetchEntity(ctx, idKey(id), func(ctx context.Context) (downstream.User, error) {
		return c.users.GetByID(ctx, id)
	})
	if err == nil && u.Email != "" {
		// mantener el índice por email alineado
		if perr := c.uc.PutBy(ctx, "email", lock.NormalizeEmail(u.Email), u, c.userTTL); perr != nil {
			c.log(ctx, "user.get").Debug("email index write failed", logger.Err(perr))
		}
	}
	return u, err
}

// ListUsers no se cachea.
func (c *Coordinator) ListUsers(ctx context.Context) ([]downstream.User, error) {
	return c.users.GetAll(ctx)
}

func (c *Coordinator) requireSelf(actor Principal, id int64) error {
	if actor.ID == 0 {
		return rpc.NewError(http.StatusUnauthorized, "Authentication required")
	}
	if actor.ID != id {
		return rpc.NewError(http.StatusForbidden, "Forbidden")
	}
	return nil
}

// UpdateUser: solo el propio usuario. write-then-cache; si cambió el email se
// desaloja el índice viejo.
func (c *Coordinator) UpdateUser(ctx context.Context, actor Principal, id int64, in downstream.UpdateUser) (downstream.User, error) {
	if err := c.requireSelf(actor, id); err != nil {
		return downstream.User{}, err
	}
	ctx = detach(ctx)
	log := c.log(ctx, "user.update").With(logger.UserID(id))

	prev, hadPrev := c.uc.GetEntity(ctx, idKey(id))
	in.ID = id
	if in.Email != nil {
		e := lock.NormalizeEmail(*in.Email)
		in.Email = &e
	}
	u, err := c.users.Update(ctx, in)
	if err != nil {
		log.Info("user.update failed", logger.Err(err))
		return downstream.User{}, err
	}
	if hadPrev && prev.Email != "" && lock.NormalizeEmail(prev.Email) != lock.NormalizeEmail(u.Email) {
		if err := c.uc.InvalidateBy(ctx, "email", lock.NormalizeEmail(prev.Email)); err != nil {
			log.Warn("email index evict failed", logger.Err(err))
		}
	}
	c.writeUserCache(ctx, u)
	log.Info("user.update done")
	return u, nil
}

// RemoveUser: solo el propio usuario. Borra downstream y desaloja id y email.
func (c *Coordinator) RemoveUser(ctx context.Context, actor Principal, id int64) (downstream.Removed, error) {
	if err := c.requireSelf(actor, id); err != nil {
		return downstream.Removed{}, err
	}
	ctx = detach(ctx)
	log := c.log(ctx, "user.remove").With(logger.UserID(id))

	prev, hadPrev := c.uc.GetEntity(ctx, idKey(id))
	removed, err := c.users.Remove(ctx, id)
	if err != nil {
		log.Info("user.remove failed", logger.Err(err))
		return downstream.Removed{}, err
	}
	if err := c.uc.InvalidateEntity(ctx, idKey(id)); err != nil {
		log.Warn("user cache evict failed", logger.Err(err))
	}
	email := actor.Email
	if hadPrev {
		email = prev.Email
	}
	if email != "" {
		if err := c.uc.InvalidateBy(ctx, "email", lock.NormalizeEmail(email)); err != nil {
			log.Warn("email index evict failed", logger.Err(err))
		}
	}
	if actor.Jti != "" {
		if err := c.sessions.RevokeSession(ctx, actor.Jti); err != nil {
			log.Warn("session revoke failed", logger.Err(err))
		}
	}
	log.Info("user.remove done")
	return removed, nil
}
