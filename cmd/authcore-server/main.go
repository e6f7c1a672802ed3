// Command authcore-server serves the authcore engine over HTTP.
//
// Configuration comes from config.yaml, .env and AUTHCORE_* variables. With
// -dev the server runs on an embedded Redis and an in-memory user store, and
// drops the Secure cookie flag.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	dev := flag.Bool("dev", false, "embedded redis, in-memory users, insecure cookies")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if *dev {
		cfg.Redis.Embedded = true
		cfg.Postgres.DSN = ""
		cfg.Cookies.DevMode = true
	}

	log := logging.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	log.Info().Msg("server exited cleanly")
}

func run(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) error {
	rdb, closeRedis, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openStore(ctx, cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer closeStore()

	app, err := newApp(ctx, appDeps{
		cfg:    cfg,
		log:    log,
		redis:  rdb,
		store:  store,
		mailer: logMailer{log: log.With().Str("component", "mail").Logger()},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	go app.srv.limiter.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      app.srv.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return httpServer.Close()
	}
	return nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if cfg.Embedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		addr = mr.Addr()
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
	closeFn := func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, err
	}
	return rdb, closeFn, nil
}

func openStore(ctx context.Context, cfg config.PostgresConfig, log zerolog.Logger) (authcore.UserStore, func(), error) {
	if cfg.DSN == "" {
		log.Warn().Msg("no postgres dsn configured, users are kept in memory")
		return memory.New(), func() {}, nil
	}

	pg, err := postgres.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return pg, pg.Close, nil
}
