package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"crosswalk/internal/audit"
	controlhandler "crosswalk/internal/control/handler"
	controlservice "crosswalk/internal/control/service"
	controlstore "crosswalk/internal/control/store"
	crosswalkhandler "crosswalk/internal/crosswalk/handler"
	cwmetrics "crosswalk/internal/crosswalk/metrics"
	crosswalkservice "crosswalk/internal/crosswalk/service"
	crosswalkstore "crosswalk/internal/crosswalk/store"
	drifthandler "crosswalk/internal/drift/handler"
	driftmetrics "crosswalk/internal/drift/metrics"
	"crosswalk/internal/drift/scanlock"
	driftservice "crosswalk/internal/drift/service"
	driftstore "crosswalk/internal/drift/store"
	frameworkhandler "crosswalk/internal/framework/handler"
	frameworkservice "crosswalk/internal/framework/service"
	frameworkstore "crosswalk/internal/framework/store"
	"crosswalk/internal/platform/config"
	"crosswalk/internal/platform/httpserver"
	"crosswalk/internal/platform/logger"
	"crosswalk/internal/platform/metrics"
	platformpostgres "crosswalk/internal/platform/postgres"
	platformredis "crosswalk/internal/platform/redis"
	transporthttp "crosswalk/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		logger.New().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := platformpostgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores: Postgres when configured, in-memory otherwise. The audit
	// outbox keeps its own database/sql handle because the outbox worker
	// and lib/pq array helpers live on that interface.
	var (
		frameworks frameworkstore.Store = frameworkstore.NewInMemoryStore()
		controls   controlstore.Store   = controlstore.NewInMemoryStore()
		mappings   crosswalkstore.Store = crosswalkstore.NewInMemoryStore()
		drifts     driftstore.Store     = driftstore.NewInMemoryStore()
		auditStore audit.Store          = audit.NewInMemoryStore()
		lock       scanlock.Lock        = scanlock.NewInMemoryLock()
	)
	if pool != nil {
		frameworks = frameworkstore.NewPostgres(pool)
		controls = controlstore.NewPostgres(pool)
		mappings = crosswalkstore.NewPostgres(pool)
		drifts = driftstore.NewPostgres(pool)

		outboxDB, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer outboxDB.Close()
		auditStore = audit.NewPostgres(outboxDB)
	}
	if redisClient != nil {
		lock = scanlock.NewRedisLock(redisClient)
	}

	auditor := audit.NewPublisher(auditStore)

	frameworkSvc := frameworkservice.New(frameworks,
		frameworkservice.WithLogger(log),
		frameworkservice.WithAuditPublisher(auditor),
	)
	crosswalkSvc := crosswalkservice.New(mappings, frameworks, controls,
		crosswalkservice.WithLogger(log),
		crosswalkservice.WithAuditPublisher(auditor),
		crosswalkservice.WithSummaryCache(redisClient),
		crosswalkservice.WithMetrics(cwmetrics.New()),
		crosswalkservice.WithWorkers(cfg.CoverageWorkers),
	)
	controlSvc := controlservice.New(controls,
		controlservice.WithLogger(log),
		controlservice.WithAuditPublisher(auditor),
		controlservice.WithDeprecationListener(crosswalkSvc),
	)
	driftSvc := driftservice.New(drifts, frameworks, mappings, controls, lock,
		driftservice.WithLogger(log),
		driftservice.WithAuditPublisher(auditor),
		driftservice.WithMappingMigrator(crosswalkSvc),
		driftservice.WithMetrics(driftmetrics.New()),
		driftservice.WithLockTTL(cfg.ScanLockTTL),
	)

	// A requirement pointing at a missing version means the store is
	// corrupt; refuse to serve rather than mask it.
	if err := frameworkSvc.VerifyIntegrity(ctx); err != nil {
		return err
	}

	// Drain the audit outbox into Kafka when brokers are configured.
	if sink, err := audit.NewKafkaSink(ctx, cfg.Kafka); err != nil {
		return err
	} else if sink != nil {
		defer sink.Close()
		source, ok := auditStore.(audit.OutboxSource)
		if !ok {
			log.Warn("kafka configured without postgres outbox; audit events stay local")
		} else {
			worker := audit.NewWorker(source, sink, log)
			go func() {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("audit worker stopped", "error", err)
				}
			}()
		}
	}

	router := transporthttp.NewRouter(transporthttp.Handlers{
		Framework: frameworkhandler.New(frameworkSvc, log),
		Control:   controlhandler.New(controlSvc, log),
		Crosswalk: crosswalkhandler.New(crosswalkSvc, log),
		Drift:     drifthandler.New(driftSvc, log),
	}, transporthttp.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		AdminTokenHash: cfg.AdminTokenHash,
		JWTSigningKey:  cfg.JWTSigningKey,
		Health: func(r *http.Request) error {
			if pool != nil {
				if err := pool.Ping(r.Context()); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Health(r.Context())
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
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
