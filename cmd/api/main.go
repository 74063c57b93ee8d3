package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/calls/migrations"
	"callhub/internal/config"
	"callhub/internal/events"
	"callhub/internal/gateway"
	"callhub/internal/httpapi"
	"callhub/internal/metrics"
	"callhub/internal/presence"
	"callhub/internal/signaling"
	"callhub/pkg/logger"
	"callhub/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	db, dialect, err := openHistoryDB(rootCtx, cfg)
	if err != nil {
		log.Error("history db init failed", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var mirror presence.Mirror
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		mirror = presence.NewRedisMirror(rdb, "", 0)
	}

	// A nil *events.Service must not end up inside the interface.
	var sink signaling.EventSink
	var nc *events.NATSPublisher
	if cfg.NATS.URL != "" {
		nc, err = events.ConnectNATS(events.NATSConfig{URL: cfg.NATS.URL, SubjectPrefix: cfg.NATS.SubjectPrefix}, log)
		if err != nil {
			log.Error("nats init failed", "err", err)
			os.Exit(1)
		}
		sink = events.NewService(nc)
	} else {
		log.Info("NATS_URL not set, call events are not published")
	}

	registry := presence.NewRegistry(log, mirror, m)
	recorder := calls.NewRecorder(calls.NewSQLRepo(db, dialect), calls.RecorderConfig{
		QueueSize:  cfg.Persist.QueueSize,
		MaxRetries: uint64(cfg.Persist.MaxRetries),
	}, log, m)
	controller := signaling.NewController(signaling.Deps{
		Presence: registry,
		Tracker:  calls.NewTracker(),
		Recorder: recorder,
		Events:   sink,
		Metrics:  m,
		Log:      log,
	}, signaling.Policy{
		CancelOutcome: calls.Outcome(cfg.Calls.CancelOutcome),
		RingTimeout:   cfg.Calls.RingTimeout,
	})
	gw := gateway.New(gateway.Deps{
		Identifier: authManager,
		Lifecycle:  gateway.NewLifecycle(registry, controller, log),
		Dispatcher: signaling.NewDispatcher(controller),
		Metrics:    m,
		Log:        log,
	}, gateway.Config{
		AllowedOrigins: cfg.WS.AllowedOrigins,
		SendQueue:      cfg.WS.SendQueue,
	})

	go controller.Run(rootCtx)
	go registry.RefreshMirror(rootCtx, 30*time.Second)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{
			Auth:     authManager,
			History:  calls.NewService(calls.NewSQLRepo(db, dialect)),
			Presence: registry,
			Calls:    controller,
		},
		authMW:    auth.RequireAccessToken(authManager),
		gateway:   gw,
		db:        db,
		metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}),
		devTokens: cfg.IsLocal(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "db_driver", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Sockets are hijacked, so srv.Shutdown does not wait for them.
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("websocket shutdown failed", "err", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error("call history drain failed", "err", err)
	}
	if nc != nil {
		nc.Close()
	}
	log.Info("shutdown complete")
}

// openHistoryDB opens the call history database and brings its schema up to
// date.
func openHistoryDB(ctx context.Context, cfg config.Config) (*sql.DB, calls.Dialect, error) {
	var (
		db      *sql.DB
		dialect calls.Dialect
		goose   string
		err     error
	)
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		db, err = utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{ConnectRetries: 5})
		dialect, goose = calls.DialectPostgres, "postgres"
	case config.DriverSQLite:
		db, err = utils.OpenSQLite(ctx, cfg.DB.SQLitePath)
		dialect, goose = calls.DialectSQLite, "sqlite3"
	default:
		return nil, "", fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
	if err != nil {
		return nil, "", err
	}
	if err := utils.Migrate(ctx, db, goose, migrations.Migrations); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("migrate: %w", err)
	}
	return db, dialect, nil
}
