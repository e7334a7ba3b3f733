package coordinator

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gateway/internal/audit"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

const (
	msgRegistrationInProgress = "Registration in progress for this email"
	msgLoginInProgress        = "Login in progress for this email"
	msgEmailTaken             = "User with this email already exists"
	msgInvalidCredentials     = "Invalid credentials"
)

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult es la respuesta de registro/login.
type AuthResult struct {
	User   downstream.User   `json:"user"`
	Tokens downstream.Tokens `json:"tokens"`
}

// Register crea el usuario y emite tokens bajo el lock reg:<email>.
// Un segundo registro concurrente con el mismo email recibe 409 sin tocar downstream.
func (c *Coordinator) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	ctx = detach(ctx)
	email := lock.NormalizeEmail(in.Email)
	if email == "" {
		return AuthResult{}, rpc.NewError(http.StatusBadRequest, "email is required")
	}
	log := c.log(ctx, "users.registration").With(logger.Email(email))

	var out AuthResult
	err := c.locker.Guard(ctx, lock.RegistrationKey(email), msgRegistrationInProgress, func(ctx context.Context) error {
		log.Info("users.registration started")
		if err := c.ensureEmailFree(ctx, email); err != nil {
			return err
		}
		created, err := c.users.Create(ctx, downstream.CreateUser{Email: email, Name: strings.TrimSpace(in.Name)})
		if err != nil {
			return err
		}
		tokens, err := c.auth.GenerateTokens(ctx, created, in.Password)
		if err != nil {
			return err
		}
		c.populate(ctx, created, tokens)
		out = AuthResult{User: created, Tokens: tokens}
		log.Info("users.registration done", logger.UserID(created.ID))
		audit.Log(ctx, audit.UserRegistered, logger.UserID(created.ID), logger.Email(email))
		return nil
	})
	if err != nil {
		log.Info("users.registration failed", logger.Err(err))
		return AuthResult{}, err
	}
	return out, nil
}

// ensureEmailFree corta temprano si el email ya está en cache. Un miss no
// garantiza nada: el servicio de usuarios sigue siendo quien rechaza duplicados.
func (c *Coordinator) ensureEmailFree(ctx context.Context, email string) error {
	if _, ok := c.uc.GetBy(ctx, "email", email); ok {
		return rpc.NewError(http.StatusConflict, msgEmailTaken)
	}
	return nil
}

// Login verifica credenciales bajo el lock auth:<email>.
func (c *Coordinator) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	ctx = detach(ctx)
	email := lock.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, rpc.NewError(http.StatusBadRequest, "email and password are required")
	}
	log := c.log(ctx, "users.login").With(logger.Email(email))

	var out AuthResult
	err := c.locker.Guard(ctx, lock.LoginKey(email), msgLoginInProgress, func(ctx context.Context) error {
		u, err := c.users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return rpc.NewError(http.StatusUnauthorized, msgInvalidCredentials)
		}
		tokens, err := c.auth.AuthByPassword(ctx, *u, in.Password)
		if err != nil {
			return err
		}
		c.populate(ctx, *u, tokens)
		out = AuthResult{User: *u, Tokens: tokens}
		log.Info("users.login done", logger.UserID(u.ID))
		audit.Log(ctx, audit.UserLoggedIn, logger.UserID(u.ID), logger.Email(email))
		return nil
	})
	if err != nil {
		log.Info("users.login failed", logger.Err(err))
		audit.Log(ctx, audit.LoginFailed, logger.Email(email), logger.Err(err))
		return AuthResult{}, err
	}
	return out, nil
}

// Logout revoca las sesiones indicadas y pide al servicio de auth borrar el
// refresh guardado. Esto último es best-effort.
func (c *Coordinator) Logout(ctx context.Context, userID int64, jtis ...string) error {
	ctx = detach(ctx)
	log := c.log(ctx, "users.logout").With(logger.UserID(userID))
	for _, jti := range jtis {
		// un jti ajeno no se toca
		if owner, ok, err := c.sessions.SessionOwner(ctx, jti); err == nil && ok && owner != userID {
			log.Warn("logout: session owned by another user", logger.String("jti", jti))
			audit.Log(ctx, audit.SessionForeign, logger.UserID(userID), logger.Int64("owner_id", owner))
			continue
		}
		if err := c.sessions.RevokeSession(ctx, jti); err != nil {
			log.Error("session revoke failed", logger.Err(err))
			return rpc.NewError(http.StatusInternalServerError, "Logout failed")
		}
	}
	if err := c.auth.RemoveToken(ctx, userID); err != nil {
		log.Warn("auth.removeToken failed", logger.Err(err))
	}
	log.Info("users.logout done")
	audit.Log(ctx, audit.UserLoggedOut, logger.UserID(userID), logger.Int("sessions", len(jtis)))
	return nil
}

// populate escribe cache de usuario, sesiones y presencia después de emitir
// tokens. Ningún fallo acá revierte la operación.
func (c *Coordinator) populate(ctx context.Context, u downstream.User, t downstream.Tokens) {
	log := c.log(ctx, "session.populate").With(logger.UserID(u.ID))
	c.writeUserCache(ctx, u)
	if err := c.sessions.MarkSession(ctx, t.AccessJti, u.ID, t.AccessTTLSec); err != nil {
		log.Warn("mark access session failed", logger.Err(err))
	}
	if err := c.sessions.MarkSession(ctx, t.RefreshJti, u.ID, t.RefreshTTLSec); err != nil {
		log.Warn("mark refresh session failed", logger.Err(err))
	}
	if err := c.sessions.MarkOnline(ctx, u.ID, 0); err != nil {
		log.Warn("mark online failed", logger.Err(err))
	}
	if err := c.sessions.MapRequestToUser(ctx, rpc.RequestIDFrom(ctx), u.ID); err != nil {
		log.Warn("map request failed", logger.Err(err))
	}
}
