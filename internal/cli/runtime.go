package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/botfactory/internal/config"
	"github.com/aretw0/botfactory/pkg/abtest"
	"github.com/aretw0/botfactory/pkg/action"
	"github.com/aretw0/botfactory/pkg/adapters/file"
	"github.com/aretw0/botfactory/pkg/adapters/redis"
	"github.com/aretw0/botfactory/pkg/adapters/sqlite"
	"github.com/aretw0/botfactory/pkg/breaker"
	"github.com/aretw0/botfactory/pkg/callback"
	"github.com/aretw0/botfactory/pkg/i18n"
	"github.com/aretw0/botfactory/pkg/llm"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/persistence/middleware"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/aretw0/botfactory/pkg/ratelimit"
	"github.com/aretw0/botfactory/pkg/session"
	"github.com/aretw0/botfactory/pkg/template"
	"github.com/aretw0/botfactory/pkg/wizard"
)

// Runtime is a fully wired bot engine and the resources it owns.
type Runtime struct {
	Engine   *wizard.Engine
	Sessions *session.Manager
	Specs    *file.Loader
	LLM      *llm.Client // nil when text improvement is disabled
	Registry *prometheus.Registry
	Logger   *slog.Logger

	db       *sql.DB
	store    *redis.Store
	embedded *miniredis.Miniredis
}

// Build wires every component described by cfg.
// An empty redis address starts an embedded server that lives as long as the Runtime.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rt *Runtime, err error) {
	rt = &Runtime{
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()
	metrics := observability.NewRecorder(rt.Registry)

	addr := cfg.Redis.Addr
	if addr == "" {
		rt.embedded, err = miniredis.Run()
		if err != nil {
			return rt, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = rt.embedded.Addr()
		logger.Info("Using embedded redis", "addr", addr)
	}
	rt.store = redis.New(addr, cfg.Redis.Password, cfg.Redis.DB,
		redis.WithPrefix(cfg.Redis.Prefix),
		redis.WithTTL(cfg.State.TTL),
	)
	client := rt.store.Client()
	if err = client.Ping(ctx).Err(); err != nil {
		return rt, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	store, err := sealedStore(rt.store, cfg.State)
	if err != nil {
		return rt, err
	}
	rt.Sessions = session.NewManager(store,
		session.WithLocker(redis.NewLocker(client, cfg.Redis.Prefix)),
		session.WithLockTTL(cfg.State.LockTTL),
		session.WithStateTTL(cfg.State.TTL),
		session.WithLogger(logger),
	)

	rt.db, err = sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return rt, err
	}
	if err = sqlite.EnsureSchema(ctx, rt.db); err != nil {
		return rt, err
	}

	translator := i18n.NewTranslator(i18n.NewSQLSource(rt.db),
		i18n.WithCacheTTL(cfg.I18n.CacheTTL),
		i18n.WithLogger(logger),
	)
	renderer := template.NewRenderer(translator)

	actionOpts := []action.Option{
		action.WithDatabase(rt.db),
		action.WithRenderer(renderer),
		action.WithRateLimit(ratelimit.NewPolicy(redis.NewCounter(client),
			ratelimit.WithLogger(logger),
			ratelimit.WithMetrics(metrics),
		)),
		action.WithBroadcaster(redis.NewBroadcaster(client, cfg.Redis.Prefix)),
		action.WithLogger(logger),
		action.WithMetrics(metrics),
	}

	if cfg.LLM.BaseURL != "" {
		rt.LLM, err = newLLMClient(cfg, client, logger, metrics)
		if err != nil {
			return rt, err
		}
		split := abtest.NewSplitter(cfg.AB.Experiment, cfg.AB.ImprovePercent)
		actionOpts = append(actionOpts, action.WithImprover(llm.NewImprover(rt.LLM), split))
		logger.Info("LLM text improvement enabled", "model", cfg.LLM.Model, "percent", cfg.AB.ImprovePercent)
	}

	rt.Specs = file.NewLoader(cfg.Specs.Dir)
	rt.Engine = wizard.NewEngine(rt.Specs, rt.Sessions, action.NewEngine(actionOpts...),
		wizard.WithCallbacks(callback.NewDispatcher()),
		wizard.WithRenderer(renderer),
		wizard.WithMaxInputSize(cfg.State.MaxInputSize),
		wizard.WithLogger(logger),
		wizard.WithMetrics(metrics),
	)
	return rt, nil
}

// sealedStore wraps store with encryption at rest when a key is configured.
func sealedStore(store ports.StateStore, cfg config.StateConfig) (ports.StateStore, error) {
	if cfg.EncryptionKey == "" {
		return store, nil
	}
	enc := middleware.EncryptionConfig{}
	var err error
	if enc.ActiveKey, err = middleware.ParseKey(cfg.EncryptionKey); err != nil {
		return nil, fmt.Errorf("state encryption key: %w", err)
	}
	for i, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("state fallback key %d: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return middleware.Chain(store, mw), nil
}

func newLLMClient(cfg *config.Config, client *goredis.Client, logger *slog.Logger, metrics *observability.Recorder) (*llm.Client, error) {
	loc, err := cfg.LLM.Location()
	if err != nil {
		return nil, fmt.Errorf("llm timezone: %w", err)
	}
	b := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		TimeoutThreshold: cfg.Breaker.TimeoutThreshold,
	}, breaker.WithLogger(logger), breaker.WithMetrics(metrics))

	prefix := cfg.Redis.Prefix
	return llm.NewClient(llm.Config{
		BaseURL:          cfg.LLM.BaseURL,
		APIKey:           cfg.LLM.APIKey,
		Model:            cfg.LLM.Model,
		Temperature:      &cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		TopP:             cfg.LLM.TopP,
		Timeout:          cfg.LLM.Timeout,
		MaxRetries:       cfg.LLM.MaxRetries,
		CacheTTL:         cfg.LLM.CacheTTL,
		RateLimit:        cfg.LLM.RateLimit,
		RateWindow:       cfg.LLM.RateWindow,
		DailyTokenBudget: cfg.LLM.DailyTokenBudget,
	},
		llm.WithLimiter(redis.NewSlidingWindow(client, prefix)),
		llm.WithBudget(redis.NewBudget(client, prefix, loc)),
		llm.WithCache(redis.NewCache(client, prefix)),
		llm.WithBreaker(b),
		llm.WithLogger(logger),
		llm.WithMetrics(metrics),
	), nil
}

// DB returns the tenant database.
func (rt *Runtime) DB() *sql.DB {
	return rt.db
}

// Close releases the database, the redis connection and the embedded server.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Client().Close())
	}
	if rt.embedded != nil {
		rt.embedded.Close()
	}
	return errors.Join(errs...)
}
