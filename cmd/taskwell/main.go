package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskwell/internal/access"
	"taskwell/internal/api"
	"taskwell/internal/config"
	"taskwell/internal/handlers/httpcall"
	"taskwell/internal/handlers/shell"
	"taskwell/internal/notify"
	"taskwell/internal/pool"
	"taskwell/internal/registry"
	"taskwell/internal/scheduler"
	"taskwell/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config file")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "storage DSN (overrides config)")
		workers = flag.Int("workers", 0, "worker pool size (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Storage.DSN = *dbPath
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	st, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open store")
	}
	defer st.Close()

	workerPool := pool.New(cfg.Workers)
	bus := notify.New()
	reg := registry.New()

	// Example handler registrations; any subsystem may register its own
	// before its handler id is first referenced by a persisted task.
	reg.Register("shell", shell.Handler{}, 0) // system-only
	reg.Register("httpcall", httpcall.Handler{}, access.ManageOwnTasks)

	sched := scheduler.New(st, workerPool, reg, bus, scheduler.Config{
		RecurrentTick: cfg.Scheduler.RecurrentTick.Std(),
		IdleWait:      cfg.Scheduler.IdleWait.Std(),
		Retention:     cfg.Scheduler.Retention.Std(),
		SweepInterval: cfg.Scheduler.SweepInterval.Std(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	srv := &http.Server{Addr: cfg.Listen, Handler: api.NewServer(sched, reg)}
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()
	workerPool.Stop()
}

func openStore(cfg config.Storage) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.OpenPostgres(cfg.DSN)
	case "bolt":
		return store.OpenBolt(cfg.DSN)
	case "redis":
		return store.OpenRedis(cfg.DSN, cfg.RedisPassword, cfg.RedisDB)
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.OpenSQLite(cfg.DSN)
	}
}
