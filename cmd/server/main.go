package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/mindwell/internal/config"
	"github.com/iliyamo/mindwell/internal/database"
	"github.com/iliyamo/mindwell/internal/handler"
	"github.com/iliyamo/mindwell/internal/idempotency"
	"github.com/iliyamo/mindwell/internal/knowledge"
	"github.com/iliyamo/mindwell/internal/middleware"
	"github.com/iliyamo/mindwell/internal/queue"
	"github.com/iliyamo/mindwell/internal/repository"
	"github.com/iliyamo/mindwell/internal/repository/memstore"
	"github.com/iliyamo/mindwell/internal/router"
	"github.com/iliyamo/mindwell/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server stopped")
}

// stores is the persistence layer selected by STORE_DRIVER.
type stores struct {
	users        repository.UserStore
	tokens       repository.TokenStore
	applications repository.ApplicationStore
	plans        repository.PlanStore
	reports      repository.ReportStore
	reviews      repository.ReviewStore
	knowledge    repository.KnowledgeStore
	db           *sql.DB
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on restart")
		m := memstore.New()
		return &stores{
			users:        m.Users,
			tokens:       m.Tokens,
			applications: m.Applications,
			plans:        m.Plans,
			reports:      m.Reports,
			reviews:      m.Reviews,
			knowledge:    m.Knowledge,
		}, nil
	}

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))
	return &stores{
		users:        repository.NewUserRepo(db),
		tokens:       repository.NewTokenRepo(db),
		applications: repository.NewApplicationRepo(db),
		plans:        repository.NewPlanRepo(db),
		reports:      repository.NewReportRepo(db),
		reviews:      repository.NewReviewRepo(db),
		knowledge:    repository.NewKnowledgeRepo(db),
		db:           db,
	}, nil
}

// openIdempotency returns nil when the configured backend is off or
// cannot be reached; the middleware then passes requests through.
func openIdempotency(ctx context.Context, cfg config.IdempotencyConfig, rdb *redis.Client, log *zap.Logger) idempotency.Store {
	switch cfg.Backend {
	case config.IdempotencyRedis:
		if rdb == nil {
			log.Warn("idempotency disabled: redis unavailable")
			return nil
		}
		return idempotency.NewRedisStore(rdb, cfg.Prefix)
	case config.IdempotencyDynamoDB:
		s, err := idempotency.NewDynamoStore(ctx, cfg.Table, cfg.Region)
		if err != nil {
			log.Warn("idempotency disabled: dynamodb unavailable", zap.Error(err))
			return nil
		}
		return s
	default:
		return nil
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	var events workflow.EventPublisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, log)
		defer pub.Close()
		events = pub
	}

	engine := workflow.New(workflow.Stores{
		Users:        st.users,
		Applications: st.applications,
		Plans:        st.plans,
		Reports:      st.reports,
		Reviews:      st.reviews,
	}, log,
		workflow.WithPublisher(events),
		workflow.WithResetPolicy(workflow.ParseResetPolicy(cfg.ResetPolicy)),
	)

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	graph := knowledge.NewService(st.knowledge, log,
		knowledge.WithPublisher(events),
		knowledge.WithInvalidator(cache),
		knowledge.WithRestrictedDelete(cfg.RestrictDisorderDelete()),
	)

	idemCfg := config.LoadIdempotencyConfig()
	var idem echo.MiddlewareFunc
	if store := openIdempotency(ctx, idemCfg, rdb, log); store != nil {
		idem = middleware.Idempotency(store, idemCfg.TTL, log)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Metrics())

	ready := map[string]handler.Pinger{}
	if st.db != nil {
		ready["mysql"] = st.db
	}
	if rdb != nil {
		ready["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	router.RegisterRoutes(e, ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	deps := router.Deps{
		JWTSecret:   cfg.JWTSecret,
		Users:       st.users,
		Log:         log,
		RateLimit:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Idempotency: idem,
		Cache:       cache,
	}
	router.RegisterAuth(e, deps, handler.NewAuthHandler(cfg, st.users, st.tokens, log))
	router.RegisterWorkflow(e, deps, handler.NewWorkflowHandler(engine, log))
	router.RegisterKnowledge(e, deps, handler.NewKnowledgeHandler(graph, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if cfg.EventsEnabled {
		g.Go(func() error {
			return queue.StartAuditConsumer(gctx, cfg.AMQPURL, queue.NewAuditWriter(cfg.AuditLogDir), log)
		})
	}
	return g.Wait()
}

