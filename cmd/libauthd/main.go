// Command libauthd serves the library authentication endpoints over HTTP.
//
// Configuration comes from the environment (see package config). With no
// DATABASE_URL it runs on the in-memory store, which is only suitable for
// local development.
//
// The PostgreSQL tables are described in store/postgres/schema.sql. Run with
// -seed to create the dummy ADMIN and USER accounts if they are missing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/config"
	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal/httpapi"
	"github.com/ansyfirmansyah/libauth/logger"
	"github.com/ansyfirmansyah/libauth/mail"
	promexport "github.com/ansyfirmansyah/libauth/metrics/export/prometheus"
	"github.com/ansyfirmansyah/libauth/store/memory"
	"github.com/ansyfirmansyah/libauth/store/postgres"
	"github.com/ansyfirmansyah/libauth/sweeper"
	"github.com/ansyfirmansyah/libauth/validation"
)

const serviceName = "libauthd"

// Seed accounts for local environments.
var seedAccounts = []struct {
	email string
	role  domain.Role
}{
	{"dummyadmin@gmail.com", domain.RoleAdmin},
	{"dummyuser@gmail.com", domain.RoleUser},
}

const seedPassword = "Password1"

func main() {
	seed := flag.Bool("seed", false, "create the dummy ADMIN and USER accounts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log, *seed); err != nil {
		log.Error("libauthd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, seed bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store domain.Store
		ready []httpapi.Pinger
	)
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store = memory.New()
	} else {
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.DatabaseURL}, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.New(pool)
		ready = append(ready, poolPinger{pool})
	}

	rdb := redis.NewClient(cfg.Redis())
	defer func() { _ = rdb.Close() }()

	var mailer libauth.Mailer = mail.NewLogMailer(cfg.Links(), log)
	if cfg.SMTPHost != "" {
		mailer = mail.NewBreakerMailer(mail.NewSMTPMailer(cfg.SMTP()), mail.DefaultBreakerConfig("smtp"), log)
	}

	v := validation.New()
	builder := libauth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithStore(store).
		WithMailer(mailer).
		WithValidator(v).
		WithLogger(log)

	var sinks []libauth.AuditSink
	if cfg.AuditStdout {
		sinks = append(sinks, libauth.NewJSONWriterSink(os.Stdout))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := libauth.NewKafkaSink(cfg.Kafka(), log)
		defer func() { _ = kafka.Close() }()
		sinks = append(sinks, kafka)
	}
	if len(sinks) > 0 {
		builder = builder.WithAuditSink(libauth.MultiSink(sinks...))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()
	ready = append(ready, engine)

	if seed {
		seedUsers(ctx, engine, log)
	}

	sw := sweeper.New(domain.NewPurger(store), cfg.Sweeper(), log, sweeper.WithLock(rdb))
	sw.Start(ctx)
	defer sw.Stop()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Engine:    engine,
			Validator: v,
			Ready:     ready,
			Metrics:   promexport.Handler(promexport.NewCollector(engine)),
			Logger:    log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr), slog.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedUsers(ctx context.Context, engine *libauth.Engine, log *slog.Logger) {
	for _, acc := range seedAccounts {
		_, created, err := engine.SeedAccount(ctx, acc.email, seedPassword, acc.role)
		if err != nil {
			log.Error("seed account failed", slog.String("email", acc.email), slog.Any("error", err))
			continue
		}
		if created {
			log.Info("seed account created", slog.String("email", acc.email), slog.String("role", string(acc.role)))
		}
	}
}

type poolPinger struct{ pool *pgxpool.Pool }

func (p poolPinger) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := p.pool.Ping(ctx)
	return time.Since(start), err
}
