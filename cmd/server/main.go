package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritax/internal/audit"
	"veritax/internal/engine"
	_ "veritax/internal/engine/enginetest"
	"veritax/internal/offline"
	"veritax/internal/platform/config"
	"veritax/internal/platform/httpserver"
	"veritax/internal/platform/logger"
	pmetrics "veritax/internal/platform/metrics"
	"veritax/internal/platform/middleware"
	platformredis "veritax/internal/platform/redis"
	"veritax/internal/validation"
	"veritax/internal/validation/handler"
	vmetrics "veritax/internal/validation/metrics"
	"veritax/internal/validation/retention"
	"veritax/internal/worker"
	"veritax/pkg/platform/httputil"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := logger.New()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	guard := offline.NewGuard(log)
	eng, err := engine.New(cfg.Engine.Binding, engine.Config{
		CacheDir:  cfg.CacheDir,
		Transport: guard,
		Logger:    log,
	})
	if err != nil {
		log.Error("failed to construct engine", "binding", cfg.Engine.Binding, "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx := context.Background()

	var store validation.RunStore = validation.NewMemoryRunStore()
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := validation.NewPostgresRunStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to prepare run store schema", "error", err)
			os.Exit(1)
		}
		store = pg
		log.Info("using postgres run store")
	}

	opts := []validation.Option{validation.WithMetrics(vmetrics.New())}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache, err := retention.NewRedisCache(redisClient.Client, cfg.Redis.TTL)
		if err != nil {
			log.Error("failed to build retention cache", "error", err)
			os.Exit(1)
		}
		opts = append(opts, validation.WithCache(cache))
		log.Info("result retention enabled", "ttl", cfg.Redis.TTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		topic := cfg.Kafka.Topic
		if topic == "" {
			topic = "veritax.audit"
		}
		publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, topic, log)
		if err != nil {
			log.Error("failed to connect audit publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts = append(opts, validation.WithAuditPublisher(publisher))
		log.Info("audit publishing enabled", "topic", topic)
	}

	if cfg.Worker.Mode == "subprocess" && cfg.Worker.Binary != "" {
		pool := worker.NewProcPool(cfg.Worker.Binary, *configPath, cfg.Worker.Timeout, log)
		opts = append(opts, validation.WithPool(pool))
		log.Info("subprocess worker isolation enabled", "binary", cfg.Worker.Binary)
	} else if cfg.Worker.Mode == "subprocess" {
		log.Warn("worker mode is subprocess but no binary configured, running in-process")
	}

	svc := validation.New(cfg, eng, guard, store, log, opts...)
	defer svc.Close()

	go cleanupLoop(ctx, cfg.TempDir, log)

	httpMetrics := pmetrics.New()
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(httpMetrics.Instrument)

	h := handler.New(svc, log)
	h.Register(router)
	h.RegisterAdmin(router, middleware.RequireAdmin(cfg.Admin.JWTSecret, log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting veritax server", "addr", cfg.Addr, "packages", len(cfg.Packages))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// cleanupLoop removes aged injector temp files hourly.
func cleanupLoop(ctx context.Context, tempDir string, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := retention.CleanupTempFiles(tempDir, 24*time.Hour, log); err != nil {
				log.Warn("temp cleanup failed", "error", err)
			}
		}
	}
}
