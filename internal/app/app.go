// Package app es el composition root: arma cache, broker, cliente RPC,
// clientes downstream, coordinator y handler HTTP a partir de la config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/gateway/internal/broker"
	amqpx "github.com/dropDatabas3/gateway/internal/broker/amqp"
	"github.com/dropDatabas3/gateway/internal/cache"
	"github.com/dropDatabas3/gateway/internal/config"
	"github.com/dropDatabas3/gateway/internal/coordinator"
	"github.com/dropDatabas3/gateway/internal/downstream"
	"github.com/dropDatabas3/gateway/internal/http/controllers"
	mw "github.com/dropDatabas3/gateway/internal/http/middlewares"
	"github.com/dropDatabas3/gateway/internal/http/router"
	jwtx "github.com/dropDatabas3/gateway/internal/jwt"
	"github.com/dropDatabas3/gateway/internal/lock"
	"github.com/dropDatabas3/gateway/internal/metrics"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rate"
	"github.com/dropDatabas3/gateway/internal/rpc"
	"github.com/dropDatabas3/gateway/internal/session"
)

// PingTransport es un transporte que sabe reportar si está conectado.
type PingTransport interface {
	rpc.Transport
	Ping(ctx context.Context) error
}

// Container tiene todo lo construido por Build.
type Container struct {
	Config      *config.Config
	Cache       cache.Client
	Transport   rpc.Transport
	RPC         *rpc.Client
	Sessions    *session.Tracker
	Coordinator *coordinator.Coordinator
	Verifier    jwtx.AccessVerifier
	Handler     http.Handler

	closers []func() error
}

// Options permite inyectar piezas ya construidas (tests, broker.kind=local).
type Options struct {
	Transport rpc.Transport
	Cache     cache.Client
	Registry  prometheus.Registerer
}

// Build arma el gateway. Lo que se abre acá se cierra con Close.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Container, err error) {
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()
	log := logger.L().With(logger.Component("app"))

	// 1. Cache store
	c.Cache = opts.Cache
	if c.Cache == nil {
		c.Cache, err = OpenCache(cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.Cache.Close)
	}

	// 2. Broker
	c.Transport = opts.Transport
	if c.Transport == nil {
		c.Transport, err = OpenTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cl, ok := c.Transport.(interface{ Close() error }); ok {
			c.closers = append(c.closers, cl.Close)
		}
	}

	// 3. Cliente RPC + clientes downstream
	c.RPC = rpc.NewClient(c.Transport, rpc.WithPolicy(rpc.Policy{
		Timeout:     cfg.RPC.Timeout,
		MaxRetries:  cfg.RPC.MaxRetries,
		BaseBackoff: cfg.RPC.BaseBackoff,
		JitterMax:   cfg.RPC.JitterMax,
	}))
	authSvc := downstream.NewAuth(c.RPC)
	usersSvc := downstream.NewUsers(c.RPC)
	contribSvc := downstream.NewContributions(c.RPC)

	// 4. Orquestación
	c.Sessions = session.New(c.Cache, cfg.Presence.OnlineTTL, cfg.Presence.RequestMapTTL)
	c.Coordinator = coordinator.New(coordinator.Deps{
		Auth:          authSvc,
		Users:         usersSvc,
		Contributions: contribSvc,
		Locker:        lock.New(c.Cache, cfg.Lock.TTL),
		Sessions:      c.Sessions,
		UserCache:     coordinator.NewUserCache(c.Cache, cfg.Cache.UserTTL),
		ContribCache:  coordinator.NewContributionCache(c.Cache, cfg.Cache.TTL),
		UserTTL:       cfg.Cache.UserTTL,
	})

	// 5. Verificación de access tokens
	if strings.TrimSpace(cfg.JWT.PublicKey) != "" {
		c.Verifier, err = jwtx.NewVerifier([]byte(cfg.JWT.PublicKey), cfg.JWT.Issuer)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("jwt public key not configured, validating tokens via auth.validateAccess")
		c.Verifier = jwtx.NewRemoteVerifier(authSvc)
	}

	// 6. Métricas + HTTP
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err = metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	if err = mw.RegisterHTTPMetrics(reg); err != nil {
		return nil, fmt.Errorf("app: http metrics: %w", err)
	}
	var metricsHandler http.Handler = promhttp.Handler()
	if g, ok := reg.(prometheus.Gatherer); ok && reg != prometheus.DefaultRegisterer {
		metricsHandler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	ctrls := controllers.New(controllers.Deps{
		Auth:          c.Coordinator,
		Users:         c.Coordinator,
		Contributions: c.Coordinator,
		Checks:        c.Checks(),
		Prod:          cfg.IsProd(),
	})
	var limiter rate.Limiter
	if cfg.RateLimit.Max > 0 {
		limiter = rate.NewWindowLimiter(c.Cache, "rl:", cfg.RateLimit.Max, cfg.RateLimit.Window)
	}
	c.Handler = router.New(router.Deps{
		Controllers: ctrls,
		Auth:        mw.RequireAuth(c.Verifier, c.Sessions),
		RateLimit:   mw.WithRateLimit(limiter, cfg.RateLimit.Max),
		Metrics:     metricsHandler,
		Prefix:      cfg.RoutePrefix(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	log.Info("gateway wired",
		logger.String("broker", cfg.Broker.Kind),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("prefix", cfg.RoutePrefix()),
	)
	return c, nil
}

// Checks son las dependencias que /readyz y `gateway ping` sondean.
func (c *Container) Checks() []controllers.Check {
	checks := []controllers.Check{{Name: "cache", Ping: c.Cache.Ping}}
	switch t := c.Transport.(type) {
	case PingTransport:
		checks = append(checks, controllers.Check{Name: "broker", Ping: t.Ping})
	case *broker.Local:
		checks = append(checks, controllers.Check{Name: "broker", Ping: func(context.Context) error {
			var missing []string
			for _, ch := range rpc.Channels() {
				if !t.Mounted(ch) {
					missing = append(missing, string(ch))
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("no local consumer for %s", strings.Join(missing, ","))
			}
			return nil
		}})
	}
	return checks
}

// Close cierra en orden inverso lo abierto por Build.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// OpenCache abre el store configurado.
func OpenCache(cfg *config.Config) (cache.Client, error) {
	store, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("app: cache %s: %w", cfg.Cache.Kind, err)
	}
	return store, nil
}

// OpenTransport abre el broker configurado. "local" no tiene consumidores
// montados: sirve para levantar la superficie HTTP sin RabbitMQ.
func OpenTransport(ctx context.Context, cfg *config.Config) (rpc.Transport, error) {
	if cfg.Broker.Kind == "local" {
		return broker.NewLocal(), nil
	}
	t, err := amqpx.Dial(ctx, amqpx.Config{
		URL: cfg.Broker.URL,
		Queues: map[rpc.Channel]string{
			rpc.ChannelAuth:          cfg.Broker.Queues.Auth,
			rpc.ChannelUsers:         cfg.Broker.Queues.Users,
			rpc.ChannelContributions: cfg.Broker.Queues.Contributions,
		},
		Policy: amqpx.QueuePolicy{
			DeadLetterExchange: cfg.Broker.DeadLetterExchange,
			MessageTTL:         time.Duration(cfg.Broker.MessageTTLMs) * time.Millisecond,
			MaxLength:          cfg.Broker.MaxLength,
		},
		DeclareQueues: true,
	})
	if err != nil {
		return nil, fmt.Errorf("app: broker: %w", err)
	}
	return t, nil
}
