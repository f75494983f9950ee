package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/config"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware/enricher"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware/errorhandler"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware/limiter"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware/logger"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware/validator"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/metrics"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/telemetry"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/runner"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/store"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// maxPromptChars guards against runaway prompts reaching a backend.
const maxPromptChars = 32000

// app is the fully wired process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	recorder metrics.Recorder

	topology  *topology.Store
	watcher   *topology.Watcher
	health    *topology.HealthChecker
	cases     store.CaseStore
	retrieval *retrieval
	engine    *triage.Engine
	runner    *runner.Runner

	closers []func(context.Context) error
}

type appOptions struct {
	// withEngine is false for commands that only touch topology or records.
	withEngine bool
	// watchTopology starts the topology file watcher.
	watchTopology bool
	// withRetrieval opens the guideline store without building the engine.
	withRetrieval bool
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logging.WithComponent("matrix"),
		registry: prometheus.NewRegistry(),
		health:   topology.NewHealthChecker(5 * time.Second),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.recorder = metrics.NewPrometheusRecorder(a.registry)

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	var redisClient *redis.Client
	if strings.EqualFold(cfg.Store.Backend, "redis") {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
	}

	if err := a.initTopology(ctx, redisClient, opts.watchTopology); err != nil {
		return nil, err
	}
	if err := a.initCaseStore(ctx, redisClient); err != nil {
		return nil, err
	}
	if !opts.withEngine {
		if opts.withRetrieval {
			if err := a.initRetrieval(ctx); err != nil {
				return nil, err
			}
		}
		return a, nil
	}

	backends, err := newBackends(cfg)
	if err != nil {
		return nil, err
	}
	for _, b := range backends.all() {
		if p, ok := b.(agent.Pinger); ok {
			a.health.Register(b.Name(), p)
		}
	}

	if err := a.initRetrieval(ctx); err != nil {
		return nil, err
	}

	newClient := func(bs ...agent.LLMClient) *modelclient.Client {
		return modelclient.New(bs,
			modelclient.WithRetry(modelclient.RetryPolicy{
				MaxAttempts:  cfg.Retry.MaxAttempts,
				InitialDelay: cfg.Retry.InitialDelay,
				MaxDelay:     cfg.Retry.MaxDelay,
				Factor:       cfg.Retry.Factor,
			}),
			modelclient.WithCallTimeout(callTimeout(cfg)),
			modelclient.WithMiddleware(a.middlewares()...),
			modelclient.WithRecorder(a.recorder),
		)
	}

	engineCfg := triage.Config{
		Local:     newClient(backends.local),
		Vision:    newClient(append(append([]agent.LLMClient(nil), backends.vision...), backends.localVision)...),
		Executive: newClient(append(append([]agent.LLMClient(nil), backends.executive...), backends.local)...),
		Retriever: a.retrieval.retriever,
		Topology:  a.topology,
		Recorder:  a.recorder,
		TopK:      cfg.Retrieval.TopK,
	}
	if a.cases != nil {
		engineCfg.Sink = a.cases
	}
	a.engine, err = triage.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}
	a.runner = runner.New(a.engine, cfg.Runner.MaxConcurrency)
	return a, nil
}

// middlewares is the interceptor chain around every backend attempt,
// outermost first.
func (a *app) middlewares() []middleware.Middleware {
	ms := []middleware.Middleware{
		errorhandler.NewErrorHandler(errorhandler.TagBackend),
		enricher.NewContextEnricher(enricher.Static(map[string]string{
			"service": telemetry.ServiceName,
			"version": Version,
		})),
		logger.NewCallLogger(logging.WithComponent("modelclient.call")),
		metrics.NewMiddleware(a.recorder),
		validator.NewInputValidator(validator.MaxPromptChars(maxPromptChars)),
		validator.NewResponseFilter(validator.NonEmptyReply),
	}
	if a.cfg.RateLimit.PerSecond > 0 {
		ms = append(ms, limiter.NewRateLimiter(a.cfg.RateLimit.PerSecond, a.cfg.RateLimit.Burst))
	}
	return ms
}

func policyFromConfig(tc config.TopologyConfig) (topology.Policy, error) {
	p := topology.DefaultPolicy()
	mode, err := topology.ParseMode(tc.Mode)
	if err != nil {
		return p, err
	}
	p.Mode = mode
	p.FallbackEnabled = tc.FallbackEnabled
	p.VisionEnabled = tc.VisionEnabled
	p.ExecutiveAgentEnabled = tc.ExecutiveAgentEnabled
	p.DataCollectionEnabled = tc.DataCollectionEnabled
	p.UpdatedBy = "config"
	return p, nil
}

func (a *app) initTopology(ctx context.Context, redisClient *redis.Client, watch bool) error {
	initial, err := policyFromConfig(a.cfg.Topology)
	if err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if a.cfg.Topology.File != "" {
		if initial, err = topology.LoadFile(a.cfg.Topology.File); err != nil {
			return fmt.Errorf("topology: %w", err)
		}
	}

	var opts []topology.Option
	if redisClient != nil {
		opts = append(opts, topology.WithPersister(topology.NewRedisPersister(redisClient, a.cfg.Topology.RedisKey)))
	}
	a.topology = topology.NewStore(initial, opts...)
	if redisClient != nil {
		if _, err := a.topology.Restore(ctx); err != nil {
			a.logger.Warn("could not restore persisted topology, using configured policy", "error", err)
		}
	}

	if watch && a.cfg.Topology.File != "" {
		w, err := topology.NewWatcher(topology.WatcherConfig{FilePath: a.cfg.Topology.File}, func(p topology.Policy) error {
			_, err := a.topology.Replace(context.Background(), p, "file:"+a.cfg.Topology.File)
			return err
		})
		if err != nil {
			return fmt.Errorf("topology watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("topology watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func(context.Context) error { return w.Stop() })
	}
	return nil
}

func (a *app) initCaseStore(ctx context.Context, redisClient *redis.Client) error {
	sc := a.cfg.Store
	switch strings.ToLower(sc.Backend) {
	case "", "none":
		return nil
	case "memory":
		a.cases = store.NewInMemoryStore()
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, &store.PostgresConfig{
			Host:     sc.Postgres.Host,
			Port:     sc.Postgres.Port,
			User:     sc.Postgres.User,
			Password: sc.Postgres.Password,
			DBName:   sc.Postgres.DBName,
			SSLMode:  sc.Postgres.SSLMode,
		})
		if err != nil {
			return fmt.Errorf("case store: %w", err)
		}
		a.cases = pg
		a.health.Register("store:postgres", pg)
		a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
	case "redis":
		rs := store.NewRedisStoreWithClient(redisClient, sc.Redis.Prefix, sc.Redis.TTL)
		a.cases = rs
		a.health.Register("store:redis", rs)
	case "mongo":
		ms, err := store.NewMongoStore(ctx, &store.MongoConfig{
			URI:        sc.Mongo.URI,
			Database:   sc.Mongo.Database,
			Collection: sc.Mongo.Collection,
		})
		if err != nil {
			return fmt.Errorf("case store: %w", err)
		}
		a.cases = ms
		a.health.Register("store:mongo", ms)
		a.closers = append(a.closers, ms.Close)
	default:
		return fmt.Errorf("unknown store backend %q", sc.Backend)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown completed with errors", "error", err)
	}
}
