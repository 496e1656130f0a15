package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/useembed/useembed/internal/accounts"
	"github.com/useembed/useembed/internal/analytics"
	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/config"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/conversation/flow"
	"github.com/useembed/useembed/internal/db"
	"github.com/useembed/useembed/internal/generation"
	"github.com/useembed/useembed/internal/handlers"
	"github.com/useembed/useembed/internal/healthcheck"
	pgchecker "github.com/useembed/useembed/internal/healthcheck/checkers/postgres"
	redischecker "github.com/useembed/useembed/internal/healthcheck/checkers/redis"
	"github.com/useembed/useembed/internal/invoker"
	"github.com/useembed/useembed/internal/logger"
	"github.com/useembed/useembed/internal/registry"
	"github.com/useembed/useembed/internal/secrets"
	"github.com/useembed/useembed/internal/server"
	"github.com/useembed/useembed/internal/tenants"
)

const defaultAdminPassword = "change-your-password-here"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the widget, websocket and dashboard API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideMetricsRegistry,
			provideRedis,
			provideSecretsBox,
			provideStores,
			registry.NewService,
			tenants.NewService,
			accounts.NewService,
			provideTenantResolver,
			provideCatalog,
			provideGenerator,
			provideAnalyticsSink,
			analytics.NewReporter,
			provideInvoker,
			provideLocker,
			provideTaskRunner,
			provideOrchestrator,
			provideHealthChecker(providePostgresChecker),
			provideHealthChecker(redischecker.NewChecker),
			provideServerHandler(providePingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(handlers.NewTenantHandler),
			provideServerHandler(handlers.NewAPIsHandler),
			provideServerHandler(handlers.NewConversationsHandler),
			provideServerHandler(handlers.NewAnalyticsHandler),
			provideServerHandler(handlers.NewWidgetHandler),
			provideServerHandler(provideSocketHandler),
			provideServer,
		),
		fx.Invoke(
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideHealthChecker(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(healthcheck.Checker)),
		fx.ResultTags(`group:"health_checkers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return config.Config{}, errors.New("auth.jwt_secret is required")
	}
	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		return config.Config{}, fmt.Errorf("unknown database.driver %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMetricsRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, reg
}

// provideRedis returns a nil client when Redis is disabled; consumers fall back to in-process state.
func provideRedis(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (redis.UniversalClient, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable at startup", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error { return client.Close() },
	})
	return client, nil
}

func provideSecretsBox(log *slog.Logger, cfg config.Config) (*secrets.Box, error) {
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	if !box.Enabled() {
		log.Warn("secrets.encryption_key is empty; API credentials are stored unencrypted")
	}
	return box, nil
}

type storesResult struct {
	fx.Out

	Pool          *pgxpool.Pool
	Registry      registry.Store
	Tenants       tenants.Store
	Accounts      accounts.Store
	Conversations conversation.Store
	Analytics     analytics.Store
}

// provideStores selects the storage backend. Pool is nil with the memory driver.
func provideStores(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, box *secrets.Box) (storesResult, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		return storesResult{
			Registry:      registry.NewMemoryStore(),
			Tenants:       tenants.NewMemoryStore(),
			Accounts:      accounts.NewMemoryStore(),
			Conversations: conversation.NewMemoryStore(),
			Analytics:     analytics.NewMemoryStore(),
		}, nil
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return storesResult{}, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return storesResult{
		Pool:          pool,
		Registry:      registry.NewPostgresStore(pool, box),
		Tenants:       tenants.NewPostgresStore(pool),
		Accounts:      accounts.NewPostgresStore(pool),
		Conversations: conversation.NewPostgresStore(pool),
		Analytics:     analytics.NewPostgresStore(pool),
	}, nil
}

func provideTenantResolver(service *tenants.Service) auth.TenantResolver { return service }

// provideCatalog caches catalogs in Redis when available, otherwise in memory.
// A zero TTL disables caching.
func provideCatalog(log *slog.Logger, cfg config.Config, store registry.Store, service *registry.Service, client redis.UniversalClient) catalog.Source {
	builder := catalog.NewBuilder(store)
	ttl := config.Duration(cfg.Catalog.CacheTTL, catalog.DefaultCacheTTL)
	if ttl == 0 {
		return builder
	}
	var cache catalog.Cache = catalog.NewMemoryCache()
	if client != nil {
		cache = catalog.NewRedisCache(client)
	}
	cached := catalog.NewCachedBuilder(log, builder, cache, ttl)
	service.OnChange(cached.Invalidate)
	return cached
}

func provideGenerator(log *slog.Logger, cfg config.Config, reg prometheus.Registerer) (*generation.Orchestrator, error) {
	timeout := config.Duration(cfg.AI.Timeout, 0)
	primary, err := chat.NewProvider(cfg.AI.Primary, timeout)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	var fallback chat.Provider
	if cfg.AI.Fallback != nil && cfg.AI.Fallback.Kind != "" {
		fallback, err = chat.NewProvider(*cfg.AI.Fallback, timeout)
		if err != nil {
			return nil, fmt.Errorf("fallback provider: %w", err)
		}
	}
	return generation.New(log, primary, fallback,
		cfg.AI.MaxRetries,
		config.Duration(cfg.AI.RetryDelay, 0),
		generation.WithMetrics(generation.NewMetrics(reg)),
	), nil
}

// provideAnalyticsSink buffers records off the request path and flushes them on shutdown.
func provideAnalyticsSink(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store analytics.Store) analytics.Sink {
	sink := analytics.NewAsyncSink(log, store, cfg.Analytics.Buffer)
	lc.Append(fx.Hook{OnStop: sink.Close})
	return sink
}

func provideInvoker(log *slog.Logger, cfg config.Config, store registry.Store, sink analytics.Sink, reg prometheus.Registerer) *invoker.Invoker {
	return invoker.New(log, store, sink, invoker.Config{
		Timeout:           config.Duration(cfg.Invoker.Timeout, invoker.DefaultTimeout),
		MaxItems:          cfg.Invoker.MaxItems,
		MaxConcurrency:    cfg.Invoker.MaxConcurrency,
		MaxTextBytes:      cfg.Invoker.MaxTextBytes,
		ValidateArguments: cfg.Invoker.ValidateArguments,
	}, invoker.WithMetrics(invoker.NewMetrics(reg)))
}

func provideLocker(cfg config.Config, client redis.UniversalClient) conversation.Locker {
	if client == nil {
		return conversation.NewLocalLocker()
	}
	return conversation.NewRedisLocker(client, config.Duration(cfg.Conversation.LockTimeout, 0))
}

func provideTaskRunner(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *flow.TaskRunner {
	runner := flow.NewTaskRunner(log, config.Duration(cfg.AI.Timeout, 0))
	lc.Append(fx.Hook{OnStop: runner.Drain})
	return runner
}

type orchestratorParams struct {
	fx.In

	Logger    *slog.Logger
	Config    config.Config
	Store     conversation.Store
	Locker    conversation.Locker
	Catalog   catalog.Source
	Generator *generation.Orchestrator
	Invoker   *invoker.Invoker
	Tenants   *tenants.Service
	Sink      analytics.Sink
	Tasks     *flow.TaskRunner
}

func provideOrchestrator(p orchestratorParams) handlers.ChatService {
	return flow.New(p.Logger, flow.Deps{
		Store:     p.Store,
		Locker:    p.Locker,
		Catalog:   p.Catalog,
		Generator: p.Generator,
		Tools:     p.Invoker,
		Prompts:   p.Tenants,
		Sink:      p.Sink,
		Tasks:     p.Tasks,
	}, flow.Config{
		HistoryLimit:    p.Config.Conversation.HistoryLimit,
		MaxToolRounds:   p.Config.Conversation.MaxToolRounds,
		TitleGeneration: p.Config.Conversation.TitleGeneration,
	})
}

type postgresCheckerParams struct {
	fx.In

	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func providePostgresChecker(p postgresCheckerParams) *pgchecker.Checker {
	var pinger pgchecker.Pinger
	if p.Pool != nil {
		pinger = p.Pool
	}
	return pgchecker.NewChecker(p.Logger, pinger)
}

type pingParams struct {
	fx.In

	Logger   *slog.Logger
	Checkers []healthcheck.Checker `group:"health_checkers"`
}

func providePingHandler(p pingParams) *handlers.PingHandler {
	return handlers.NewPingHandler(p.Logger, p.Checkers...)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config, accountService *accounts.Service, tenantService *tenants.Service) *handlers.AuthHandler {
	expiresIn := config.Duration(cfg.Auth.JWTExpiresIn, 24*time.Hour)
	return handlers.NewAuthHandler(log, accountService, tenantService, cfg.Auth.JWTSecret, expiresIn)
}

func provideSocketHandler(log *slog.Logger, cfg config.Config, chatService handlers.ChatService, resolver auth.TenantResolver, reg prometheus.Registerer) *handlers.SocketHandler {
	return handlers.NewSocketHandler(log, chatService, resolver, cfg.Websocket.AllowedOrigins, reg)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startRetention(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store analytics.Store) {
	retention := analytics.NewRetention(log, store, cfg.Analytics.RetentionDays)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return retention.Start(cfg.Analytics.RetentionSchedule) },
		OnStop:  retention.Stop,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, tenantService *tenants.Service, accountService *accounts.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureAdminUser(ctx, logger, tenantService, accountService, cfg); err != nil {
				return err
			}
			logger.Info("server starting", slog.String("addr", cfg.Server.Addr), slog.String("version", version))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// ensureAdminUser seeds the first tenant and its owner when no accounts exist.
func ensureAdminUser(ctx context.Context, log *slog.Logger, tenantService *tenants.Service, accountService *accounts.Service, cfg config.Config) error {
	count, err := accountService.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	email := strings.TrimSpace(cfg.Admin.Email)
	password := strings.TrimSpace(cfg.Admin.Password)
	if email == "" || password == "" {
		return errors.New("admin email/password required in config.toml")
	}
	if password == defaultAdminPassword {
		log.Warn("admin password uses default placeholder; please update config.toml")
	}
	tenant, _, err := createTenantWithOwner(ctx, log, tenantService, accountService, cfg.Admin.TenantName, email, password)
	if err != nil {
		return err
	}
	log.Info("admin user created", slog.String("email", email), slog.String("tenant_id", tenant.ID))
	return nil
}
