package main

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/proposals/api/handler"
	"github.com/fastygo/proposals/internal/config"
	"github.com/fastygo/proposals/internal/infrastructure/events"
	"github.com/fastygo/proposals/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/proposals/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/proposals/internal/infrastructure/redis"
	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/internal/middleware"
	"github.com/fastygo/proposals/internal/router"
	"github.com/fastygo/proposals/internal/services"
	"github.com/fastygo/proposals/internal/services/lifecycle"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/pkg/httpcontext"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
	"github.com/fastygo/proposals/repository/postgres"
	redisRepo "github.com/fastygo/proposals/repository/redis"
	"github.com/fastygo/proposals/usecase/draft"
	offerUC "github.com/fastygo/proposals/usecase/offer"
	"github.com/fastygo/proposals/usecase/pricing"
	proposalUC "github.com/fastygo/proposals/usecase/proposal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	// Redis only backs the draft cache; the finder works without it.
	var (
		redisClient *redislib.Client
		draftCache  repository.DraftCache
	)
	if redisClient, err = redisInfra.NewClient(cfg.Redis); err != nil {
		zapLogger.Warn("redis unavailable, draft cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		draftCache = redisRepo.NewDraftCache(redisClient, cfg.Drafts.CacheTTL)
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	var (
		natsConn  *nats.Conn
		publisher proposalUC.StatusPublisher = events.Nop{}
	)
	if cfg.Events.NATSURL != "" {
		natsConn, err = events.Connect(cfg.Events.NATSURL, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Warn("nats unavailable, status events disabled", zap.Error(err))
			natsConn = nil
		} else {
			publisher = events.NewPublisher(natsConn, cfg.Events.SubjectPrefix, zapLogger)
			manager.Register("nats", func(ctx context.Context) error {
				return natsConn.Drain()
			})
		}
	}

	mon := monitor.New(pool, redisClient, natsConn, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	realClock := clock.Real()

	if cfg.Offers.SweepSpec != "" {
		sweeper, err := services.NewOfferSweeper(
			postgres.NewAppliedOfferExpirer(pool),
			mon,
			realClock,
			appMetrics,
			zapLogger,
			services.SweeperConfig{Spec: cfg.Offers.SweepSpec},
		)
		if err != nil {
			zapLogger.Fatal("invalid offer sweep schedule", zap.Error(err))
		}
		sweeper.Start()
		manager.Register("offer_sweeper", func(ctx context.Context) error {
			sweeper.Stop(ctx)
			return nil
		})
	}

	catalog := postgres.NewOfferCatalog(pool)
	drafts := postgres.NewDraftRepository(pool)

	engine := proposalUC.NewEngine(
		postgres.NewTxManager(pool, zapLogger),
		postgres.NewSequenceGenerator(pool, cfg.Proposals.NumberPrefix),
		offerUC.NewAssigner(realClock, zapLogger, appMetrics),
		pricing.NewBuilder(),
		realClock,
		zapLogger,
		appMetrics,
	)
	finder := draft.NewFinder(draft.Config{
		Cache:    draftCache,
		Bindings: drafts,
		Primary:  drafts.Function(),
		Fallback: drafts.Query(),
		Window:   cfg.Drafts.Window,
		Clock:    realClock,
		Logger:   zapLogger,
		Metrics:  appMetrics,
	})
	proposalUseCase := proposalUC.New(engine, finder, drafts, publisher, zapLogger, appMetrics)
	catalogService := offerUC.NewCatalogService(catalog)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Proposal: apiHandler.NewProposalHandler(proposalUseCase, ctxAdapter, zapLogger),
		Offers:   apiHandler.NewOffersHandler(catalogService, ctxAdapter, zapLogger),
		Health:   apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if cfg.JWT.Secret == "" {
		zapLogger.Warn("JWT_SECRET is empty; every request will be rejected")
	}
	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	zapLogger.Info("shutting down", zap.Strings("components", manager.Components()))
	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
