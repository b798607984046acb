// slatepickd analyzes an upcoming match slate and serves the resulting
// predictions, upset candidates, and selection plans over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/cache"
	"github.com/junhopark/slatepick/pkg/config"
	"github.com/junhopark/slatepick/pkg/metrics"
	"github.com/junhopark/slatepick/pkg/plan"
	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/anomaly"
	"github.com/junhopark/slatepick/pkg/predict/consensus"
	"github.com/junhopark/slatepick/pkg/predict/ensemble"
	"github.com/junhopark/slatepick/pkg/predict/hybrid"
	"github.com/junhopark/slatepick/pkg/predict/providers"
	"github.com/junhopark/slatepick/pkg/slate"
	"github.com/junhopark/slatepick/pkg/store"
	"github.com/junhopark/slatepick/pkg/streaming"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	slatePath  = flag.String("slate", "", "Path to slate JSON file (overrides config)")
	runOnce    = flag.Bool("once", false, "Analyze the slate once, print the plan, and exit")
	verbose    = flag.Bool("verbose", false, "Debug logging")
)

func main() {
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *slatePath != "" {
		cfg.Engine.SlateFile = *slatePath
	}

	log := newLogger(cfg.Log, *verbose)
	log.Info().Str("addr", cfg.Server.Addr).Msg("starting slatepickd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}
	defer app.close()

	if *runOnce {
		run, err := app.engine.RunOnce(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("slate run failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			log.Fatal().Err(err).Msg("encoding run")
		}
		return
	}

	go app.hub.Run()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	if cfg.Engine.SlateFile != "" {
		if err := app.engine.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("engine start failed")
		}
	} else {
		log.Warn().Msg("no slate file configured, runs must be triggered via POST /run")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	app.engine.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}

type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	engine *slate.Engine
	hub    *streaming.Hub
	met    *metrics.Metrics
	pg     *store.Postgres
	rdb    *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		met: metrics.Default(),
		hub: streaming.NewHub(log),
	}

	cacheStore, err := a.newCache(ctx)
	if err != nil {
		return nil, err
	}

	regs := providers.FromEnv(log)
	applyWeights(regs, cfg.Providers.Weights)

	aggCfg := consensus.DefaultConfig()
	if cfg.Providers.Timeout > 0 {
		aggCfg.ProviderTimeout = cfg.Providers.Timeout
	}
	if cfg.Providers.CacheTTL > 0 {
		aggCfg.CacheTTL = cfg.Providers.CacheTTL
	}
	agg := consensus.New(regs, cacheStore, aggCfg, log)

	hybridCfg := hybrid.DefaultConfig()
	if len(cfg.Hybrid.TierWeights) > 0 {
		hybridCfg.TierWeights = tierWeights(cfg.Hybrid.TierWeights)
	}
	if cfg.Hybrid.MaxConcurrent > 0 {
		hybridCfg.MaxConcurrent = cfg.Hybrid.MaxConcurrent
	}
	synth := hybrid.New(agg, nil, ensemble.New(ensemble.DefaultConfig()), hybridCfg, log)

	anomalyCfg := anomaly.DefaultConfig()
	if cfg.Anomaly.MinDivergence > 0 {
		anomalyCfg.MinDivergence = cfg.Anomaly.MinDivergence
	}
	if cfg.Anomaly.MinConfidence > 0 {
		anomalyCfg.MinConfidence = cfg.Anomaly.MinConfidence
	}
	detector := anomaly.New(anomalyCfg, log)

	planner := plan.NewPlanner(planConfig(cfg.Plan), log)

	opts := []slate.Option{
		slate.WithAggregator(agg),
		slate.WithPublisher(a.hub),
		slate.WithMetrics(a.met),
	}
	if cfg.Engine.SlateFile != "" {
		opts = append(opts, slate.WithSource(slate.NewFileSource(cfg.Engine.SlateFile)))
	}
	if cfg.Postgres.DSN != "" {
		pg, err := store.NewPostgres(cfg.Postgres.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pg = pg
		opts = append(opts, slate.WithStore(pg))
	}

	engineCfg := slate.Config{
		RunInterval: cfg.Engine.RunInterval,
		RunTimeout:  cfg.Engine.RunTimeout,
	}
	a.engine = slate.NewEngine(engineCfg, synth, detector, planner, log, opts...)
	a.engine.OnError(func(err error) {
		a.hub.BroadcastError(err, "engine")
	})
	a.engine.OnStageComplete(func(sr *slate.StageResult) {
		a.hub.BroadcastStatus(sr)
	})
	a.engine.OnRunComplete(func(run *slate.Run) {
		for _, pred := range run.Predictions {
			a.hub.BroadcastPrediction(pred)
			a.met.RecordPrediction(string(pred.Winner), pred.Confidence, pred.ConsensusScore)
		}
		for _, an := range run.Anomalies {
			a.hub.BroadcastAnomaly(an)
		}
		if run.Plan != nil {
			a.hub.BroadcastPlan(run.Plan)
		}
	})

	return a, nil
}

func (a *app) newCache(ctx context.Context) (cache.Store, error) {
	if a.cfg.Redis.Addr == "" {
		return cache.NewMemory(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info().Str("addr", a.cfg.Redis.Addr).Msg("redis cache connected")
	return cache.NewRedis(rdb, a.log), nil
}

func (a *app) close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]interface{}{
			"running":    a.engine.IsRunning(),
			"ws_clients": a.hub.ClientCount(),
		}
		if run, ok := a.engine.LastRun(); ok {
			status["last_run_id"] = run.RunID
			status["last_run_at"] = run.StartedAt
			status["matches"] = len(run.Matches)
		}
		writeJSON(w, status)
	})

	r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
		var matches []*predict.MatchContext
		if err := json.NewDecoder(req.Body).Decode(&matches); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		run, err := a.engine.RunSlate(req.Context(), matches)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, run)
	})

	r.Get("/predictions", func(w http.ResponseWriter, req *http.Request) {
		run, ok := a.engine.LastRun()
		if !ok {
			http.Error(w, "no completed run", http.StatusNotFound)
			return
		}
		writeJSON(w, run.Predictions)
	})

	r.Get("/plan", func(w http.ResponseWriter, req *http.Request) {
		run, ok := a.engine.LastRun()
		if !ok || run.Plan == nil {
			http.Error(w, "no completed run", http.StatusNotFound)
			return
		}
		writeJSON(w, run.Plan)
	})

	r.Get("/upsets", func(w http.ResponseWriter, req *http.Request) {
		run, ok := a.engine.LastRun()
		if !ok {
			http.Error(w, "no completed run", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{
			"scores":    run.UpsetScores,
			"anomalies": run.Anomalies,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		if a.pg == nil {
			http.Error(w, "persistence not configured", http.StatusNotFound)
			return
		}
		runs, err := a.pg.RecentRuns(req.Context(), 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	})

	r.Handle("/metrics", promhttp.HandlerFor(a.met.Registry(), promhttp.HandlerOpts{}))
	r.Get("/ws", a.hub.ServeWS)

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newLogger(cfg config.LogConfig, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var out zerolog.Logger
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stderr)
	}
	return out.Level(level).With().Timestamp().Logger()
}

func applyWeights(regs []providers.Registration, weights map[string]float64) {
	if len(weights) == 0 {
		return
	}
	for i := range regs {
		if w, ok := weights[regs[i].Provider.Name()]; ok {
			regs[i].Weight = w
		}
	}
}

func tierWeights(m map[string]float64) map[predict.TierKind]float64 {
	out := make(map[predict.TierKind]float64, len(m))
	for k, v := range m {
		out[predict.TierKind(k)] = v
	}
	return out
}

func planConfig(pc config.PlanConfig) plan.Config {
	var cfg plan.Config
	switch pc.Preset {
	case "aggressive":
		cfg = plan.AggressiveConfig()
	case "conservative":
		cfg = plan.ConservativeConfig()
	default:
		cfg = plan.DefaultConfig()
	}

	if pc.SingleConfidence > 0 {
		cfg.SingleConfidence = pc.SingleConfidence
	}
	if pc.SingleProbability > 0 {
		cfg.SingleProbability = pc.SingleProbability
	}
	if pc.DoubleProbability > 0 {
		cfg.DoubleProbability = pc.DoubleProbability
	}
	if pc.Budget > 0 {
		cfg.Budget = decimal.NewFromFloat(pc.Budget)
	}
	if pc.UnitCost > 0 {
		cfg.UnitCost = decimal.NewFromFloat(pc.UnitCost)
	}
	if pc.PriceMargin > 0 {
		cfg.PriceMargin = pc.PriceMargin
	}
	if pc.MaxStakeFraction > 0 {
		cfg.MaxStakeFraction = pc.MaxStakeFraction
	}
	if pc.UpsetCover != nil {
		cfg.UpsetCover = *pc.UpsetCover
	}
	return cfg
}
