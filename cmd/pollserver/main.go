// The pollserver binary is the poll deployment shape: a stateless HTTP API
// over Redis-backed stores, suitable for clients behind proxies that cannot
// hold a WebSocket open. Multiple instances can share one Redis.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/zingo/pair-server/internal/config"
	"github.com/zingo/pair-server/internal/engine"
	"github.com/zingo/pair-server/internal/httpapi"
	"github.com/zingo/pair-server/internal/matchmaking"
	"github.com/zingo/pair-server/internal/presence"
	"github.com/zingo/pair-server/internal/ratelimit"
	"github.com/zingo/pair-server/internal/relay"
	"github.com/zingo/pair-server/internal/report"
)

func main() {
	cfg := config.Load()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	cancel()

	// --- Reports (optional) ---
	var reports *report.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		if err := report.Migrate(db); err != nil {
			log.Fatalf("report migrations failed: %v", err)
		}
		reports = report.NewStore(db)
	} else {
		log.Printf("POSTGRES_DSN not set, reports will be logged only")
	}

	engCfg := engine.Config{
		PresenceThreshold: cfg.PresenceThreshold,
		QueueMaxAge:       cfg.QueueMaxAge,
		SweepInterval:     cfg.SweepInterval,
	}
	eng := engine.New(engCfg,
		presence.NewRedisTracker(rdb),
		matchmaking.NewRedisQueue(rdb),
		matchmaking.NewRedisRegistry(rdb),
		relay.NewRedisStore(rdb),
	)
	limiter := ratelimit.NewLimiter(rdb)

	api := httpapi.New(eng, limiter, reports)

	log.Printf("pair poll server starting")
	log.Printf("  listen_addr: %s", cfg.ListenAddr)
	log.Printf("  redis_addr:  %s", cfg.RedisAddr)
	log.Printf("  server_name: %s", cfg.ServerName)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go eng.StartSweep(sweepCtx)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		sweepCancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
