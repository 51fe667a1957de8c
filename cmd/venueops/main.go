package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	alertapi "github.com/qiniu/venueops/internal/alerting/api"
	"github.com/qiniu/venueops/internal/alerting/cache"
	adb "github.com/qiniu/venueops/internal/alerting/database"
	"github.com/qiniu/venueops/internal/alerting/observability"
	"github.com/qiniu/venueops/internal/alerting/service/healthcheck"
	"github.com/qiniu/venueops/internal/alerting/service/metrics"
	"github.com/qiniu/venueops/internal/alerting/service/receiver"
	"github.com/qiniu/venueops/internal/alerting/service/remediation"
	"github.com/qiniu/venueops/internal/alerting/service/ruleset"
	"github.com/qiniu/venueops/internal/alerting/service/runbook"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/qiniu/venueops/internal/config"
	"github.com/qiniu/venueops/internal/middleware"
	"github.com/qiniu/venueops/internal/simulator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// load config first
	log.Info().Msg("Starting venueops monitor")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLogLevel(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := observability.New(reg)

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()
	if err := runbook.Seed(ctx, st); err != nil {
		log.Error().Err(err).Msg("seed runbooks failed")
	}

	alertCache := cache.NewRedisCache(cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))

	rules := ruleset.NewManager(ruleset.NewThresholdExporter(reg))
	if err := rules.LoadRules(ctx, cfg.Alerting.Ruleset.ConfigFile); err != nil {
		log.Fatal().Err(err).Msg("invalid alert rules")
	}

	rec := metrics.NewRecorder(st, metrics.RecorderOptions{
		BufferSize:    cfg.Alerting.Recorder.BufferSize,
		FlushInterval: config.ParseDuration(cfg.Alerting.Recorder.FlushInterval, metrics.DefaultFlushInterval),
		MaxPending:    cfg.Alerting.Recorder.MaxPending,
		Metrics:       m,
	})
	agg := metrics.NewAggregator(st)
	incidents := remediation.NewManager(st, remediation.Options{
		FollowUpDelay: config.ParseDuration(cfg.Alerting.Remediation.FollowUpDelay, remediation.DefaultFollowUpDelay),
		Cache:         alertCache,
		Metrics:       m,
	})
	defer incidents.Stop()
	engine := healthcheck.NewEngine(rules.Rules(), st, incidents, healthcheck.EngineOptions{Cache: alertCache, Metrics: m})
	if err := engine.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("restore live alerts failed; starting with an empty alert map")
	}

	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		rec.Start(ctx)
	}()

	cycle := healthcheck.Deps{
		Engine:        engine,
		KPIs:          agg,
		Feeds:         st,
		Metrics:       m,
		Interval:      config.ParseDuration(cfg.Alerting.Evaluation.Interval, 2*time.Second),
		WindowMinutes: cfg.Alerting.Evaluation.WindowMinutes,
	}
	go healthcheck.StartScheduler(ctx, cycle)

	ing := receiver.NewIngestor(rec, st)
	sim := simulator.NewRunner(simulator.New(cfg.Simulator.Seed), ing,
		config.ParseDuration(cfg.Simulator.TickInterval, simulator.DefaultTickInterval))
	if cfg.Simulator.Enabled {
		sim.Start(ctx)
	}
	defer sim.Stop()

	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	alertapi.NewApi(router, alertapi.Deps{
		Aggregator:           agg,
		Engine:               engine,
		Cycle:                cycle,
		Incidents:            incidents,
		Feeds:                st,
		Runbooks:             st,
		Receiver:             receiver.NewHandler(ing),
		Simulator:            sim,
		Gatherer:             reg,
		DefaultWindowMinutes: cfg.Alerting.KPI.DefaultWindowMinutes,
	})

	srv := &http.Server{Addr: cfg.Server.BindAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("start venueops server failed.")
	}
	sim.Stop()
	<-recorderDone
	log.Info().Msg("venueops server exit...")
}

// openStore connects to PostgreSQL, falling back to the in-memory store when the
// database is disabled or unreachable.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func()) {
	if cfg.Database.Disabled {
		log.Warn().Msg("database disabled; using in-memory store")
		return store.NewMemStore(), func() {}
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := adb.New(connectCtx, cfg.Database.DSN())
	if err != nil {
		log.Error().Err(err).Msg("alerting DB init failed; monitor will run on the in-memory store")
		return store.NewMemStore(), func() {}
	}
	if err := db.Migrate(connectCtx); err != nil {
		log.Fatal().Err(err).Msg("migrate alerting schema failed")
	}
	return store.NewPgStore(db), func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("close database failed")
		}
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
