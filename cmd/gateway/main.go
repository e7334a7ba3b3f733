package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/gateway/internal/app"
	"github.com/dropDatabas3/gateway/internal/config"
	"github.com/dropDatabas3/gateway/internal/http/server"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath = envOr("GATEWAY_CONFIG", "")
		envFile = envOr("GATEWAY_ENV_FILE", ".env")
	)

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "API gateway: HTTP -> RPC sobre RabbitMQ con cache, locks y sagas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env es opcional; las variables del sistema tienen prioridad
			_ = godotenv.Load(envFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Archivo YAML de configuración (env GATEWAY_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env a cargar si existe")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.Log.Level,
			ServiceName: cfg.App.ServiceName,
			Version:     cfg.App.ServiceVersion,
			File:        cfg.Log.File,
			MaxSizeMB:   cfg.Log.MaxSizeMB,
			MaxBackups:  cfg.Log.MaxBackups,
			MaxAgeDays:  cfg.Log.MaxAgeDays,
		})
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := app.Build(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.L().Warn("shutdown cleanup", logger.Err(err))
				}
			}()

			return server.New(cfg.Server.Addr, c.Handler).Run(ctx)
		},
	}

	var pingTimeout time.Duration
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Verifica conectividad con cache y broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
			defer cancel()

			store, err := app.OpenCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			fmt.Printf("cache  %-6s ok\n", cfg.Cache.Kind)

			tr, err := app.OpenTransport(ctx, cfg)
			if err != nil {
				return err
			}
			if cl, ok := tr.(interface{ Close() error }); ok {
				defer cl.Close()
			}
			if p, ok := tr.(app.PingTransport); ok {
				if err := p.Ping(ctx); err != nil {
					return fmt.Errorf("broker: %w", err)
				}
			}
			fmt.Printf("broker %-6s ok\n", cfg.Broker.Kind)
			return nil
		},
	}
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "Tiempo máximo para conectar")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Imprime la configuración efectiva (secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Masked())
		},
	}

	root.AddCommand(serveCmd, pingCmd, configCmd)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
