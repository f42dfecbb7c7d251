package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/giall/hecate"
	"github.com/giall/hecate/account"
	"github.com/giall/hecate/httpapi"
	"github.com/giall/hecate/internal/config"
	"github.com/giall/hecate/mail"
	"github.com/giall/hecate/notify"
	"github.com/giall/hecate/store/memory"
	mongostore "github.com/giall/hecate/store/mongo"
	"github.com/giall/hecate/store/postgres"
)

const readHeaderTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The account store, optional Redis, SMTP and
cookie settings are read from HECATE_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
			}
			return runServe(cmd.Context(), cfg, newLogger(cfg.Log, os.Stderr))
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sender, err := newSender(cfg, log)
	if err != nil {
		return err
	}

	builder := hecate.New().
		WithConfig(cfg.Engine()).
		WithAccountStore(accounts).
		WithNotifier(sender).
		WithLogger(log).
		WithMetrics(registry)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").With("operation", "build engine").Wrap(err)
	}
	defer engine.Close()

	var metrics http.Handler
	if cfg.HTTP.MetricsEnabled {
		metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}

	router := httpapi.NewRouter(engine, httpapi.Config{
		SecureCookies: cfg.HTTP.SecureCookies,
		CookieDomain:  cfg.HTTP.CookieDomain,
		TrustProxy:    cfg.HTTP.TrustProxy,
		AllowedOrigin: cfg.Web.Host,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Metrics:       metrics,
	}, log)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("store", cfg.Store.Backend).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("SERVER_FAILED").With("operation", "listen").With("addr", cfg.HTTP.Addr).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").With("operation", "shutdown").Wrap(err)
	}
	return nil
}

// openStore connects the configured account store. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (account.Store, func(), error) {
	switch cfg.Backend {
	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to mongo").Wrap(err)
		}
		release := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect failed")
			}
		}

		store, err := mongostore.New(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			release()
			return nil, nil, err
		}
		return store, release, nil

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to postgres").Wrap(err)
		}
		return postgres.New(pool), pool.Close, nil

	default:
		log.Warn().Msg("memory account store; accounts are lost on restart")
		return memory.New(), func() {}, nil
	}
}

// newSender returns an SMTP sender when SMTP is configured, otherwise one
// that logs the links.
func newSender(cfg config.Config, log zerolog.Logger) (notify.Sender, error) {
	smtp, ok := cfg.Mailer()
	if !ok {
		log.Warn().Msg("no smtp host; notification links are logged")
		return mail.NewLogSender(cfg.Site(), log), nil
	}

	sender, err := mail.NewSMTPSender(smtp, cfg.Site())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "configure smtp").Wrap(err)
	}
	return sender, nil
}
