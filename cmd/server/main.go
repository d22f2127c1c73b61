package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paulgasbarra/together-we-code/internal/api"
	"github.com/paulgasbarra/together-we-code/internal/auth"
	"github.com/paulgasbarra/together-we-code/internal/config"
	"github.com/paulgasbarra/together-we-code/internal/dispatch"
	"github.com/paulgasbarra/together-we-code/internal/exec"
	"github.com/paulgasbarra/together-we-code/internal/metrics"
	"github.com/paulgasbarra/together-we-code/internal/routers"
	"github.com/paulgasbarra/together-we-code/internal/session"
	"github.com/paulgasbarra/together-we-code/internal/store"
)

// Seams for tests.
var (
	newPostgres    = store.NewPostgres
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	exitFunc       = defaultExit
	exit           = os.Exit
)

func main() {
	if err := run(); err != nil {
		exitFunc(err)
	}
}

func run() error {
	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()
	log := zlog.Sugar()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pg, err := newPostgres(cfg.PostgresDSN)
	if err != nil {
		return err
	}

	var questions store.QuestionStore = pg
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		questions = store.NewCachedQuestionStore(pg, rdb, cfg.CacheTTL, log)
		log.Infow("question cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hub := session.NewHub()
	runners := exec.DefaultRegistry(exec.Limits{
		WallTime: cfg.RunTimeout,
		MemoryB:  cfg.RunMemoryB,
		NanoCPUs: cfg.RunNanoCPUs,
	})
	dispatcher := dispatch.New(questions, pg, runners, hub, log, m, dispatch.Config{
		Capacity:   cfg.PoolCapacity,
		QueueDepth: cfg.PoolQueueDepth,
	})

	authenticator := auth.New(cfg.JWTSecret, cfg.TokenTTL)
	handlers := api.NewHandlers(log, hub, pg, dispatcher, runners, authenticator)

	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     routers.New(handlers, registry),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Errorw("shutdown failed", "error", err)
		}
	}()

	log.Infow("server listening", "addr", cfg.Addr, "languages", runners.Names())
	if err := listenAndServe(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func defaultExit(err error) {
	os.Stderr.WriteString("fatal: " + err.Error() + "\n")
	exit(1)
}
