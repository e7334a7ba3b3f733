// Package controllers contiene los handlers HTTP del gateway. Son delgados:
// decodifican, llaman al coordinator y escriben la respuesta o el error.
package controllers

import (
	"context"

	"github.com/dropDatabas3/gateway/internal/coordinator"
	"github.com/dropDatabas3/gateway/internal/downstream"
)

// AuthFlows son los flujos de registro/login/logout.
type AuthFlows interface {
	Register(ctx context.Context, in coordinator.RegisterInput) (coordinator.AuthResult, error)
	Login(ctx context.Context, in coordinator.LoginInput) (coordinator.AuthResult, error)
	Logout(ctx context.Context, userID int64, jtis ...string) error
}

type UserFlows interface {
	GetUser(ctx context.Context, id int64) (downstream.User, error)
	ListUsers(ctx context.Context) ([]downstream.User, error)
	UpdateUser(ctx context.Context, actor coordinator.Principal, id int64, in downstream.UpdateUser) (downstream.User, error)
	RemoveUser(ctx context.Context, actor coordinator.Principal, id int64) (downstream.Removed, error)
}

type ContributionFlows interface {
	CreateContribution(ctx context.Context, author coordinator.Principal, in coordinator.CreateContributionInput) (downstream.Contribution, error)
	GetContribution(ctx context.Context, id int64) (downstream.Contribution, error)
	ListContributions(ctx context.Context, q downstream.ListContributionsQuery) (downstream.ContributionList, error)
	UpdateContribution(ctx context.Context, actor coordinator.Principal, id int64, in downstream.UpdateContribution) (downstream.Contribution, error)
	RemoveContribution(ctx context.Context, actor coordinator.Principal, id int64) (downstream.Removed, error)
}

// Controllers agrupa todos los controllers.
type Controllers struct {
	Users         *UserController
	Contributions *ContributionController
	Health        *HealthController
}

// Deps son las dependencias para construir los controllers.
type Deps struct {
	Auth          AuthFlows
	Users         UserFlows
	Contributions ContributionFlows
	Checks        []Check
	// Prod activa Secure + SameSite=None en la cookie de refresh.
	Prod bool
}

func New(d Deps) *Controllers {
	return &Controllers{
		Users:         &UserController{auth: d.Auth, users: d.Users, prod: d.Prod},
		Contributions: &ContributionController{contribs: d.Contributions},
		Health:        &HealthController{checks: d.Checks},
	}
}
