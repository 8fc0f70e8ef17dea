package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/analysis"
	"github.com/iliyamo/medhome/internal/config"
	"github.com/iliyamo/medhome/internal/database"
	"github.com/iliyamo/medhome/internal/handler"
	"github.com/iliyamo/medhome/internal/middleware"
	"github.com/iliyamo/medhome/internal/queue"
	"github.com/iliyamo/medhome/internal/repository"
	"github.com/iliyamo/medhome/internal/router"
	"github.com/iliyamo/medhome/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	mode, err := analysis.ParseMode(cfg.TrendBranchMode)
	if err != nil {
		logger.Fatal("invalid TREND_BRANCH_MODE", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("connect mysql", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	repos := repository.NewMySQLManager()

	var events service.EventPublisher = queue.Nop{}
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL, logger)
		consumer := queue.NewConsumer(cfg.Events.URL, cfg.Events.LogDir, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	cred := service.NewCredential(cfg.BcryptCost, logger)
	inventory := service.NewInventory(db, repos, cfg.SerialPrefix, logger)
	sessions := service.NewSessions(db, repos, cred, cfg.SessionMaxAge, logger)
	pairing := service.NewPairing(db, repos, inventory, cred, events, logger)
	ingestion := service.NewIngestion(db, repos, inventory, events, logger)
	dashboards := service.NewDashboards(db, repos, analysis.New(mode))

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if cfg.SessionPurgeOnStart {
		if _, err := sessions.PurgeAll(bootCtx); err != nil {
			logger.Fatal("purge sessions", zap.Error(err))
		}
	} else if n, err := sessions.PurgeExpired(bootCtx); err != nil {
		logger.Warn("purge expired sessions", zap.Error(err))
	} else if n > 0 {
		logger.Info("expired sessions purged", zap.Int64("count", n))
	}
	added, err := inventory.TopUp(bootCtx, cfg.InventoryMinFree)
	cancel()
	if err != nil {
		logger.Fatal("stock devices", zap.Error(err))
	}
	logger.Info("device inventory ready", zap.Int("added", added), zap.Int("min_free", cfg.InventoryMinFree))

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and caching disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, router.Deps{
		Cfg:        cfg,
		Redis:      rdb,
		Log:        logger,
		DB:         db,
		Authz:      sessions,
		Auth:       handler.NewAuthHandler(cfg, pairing, sessions, logger),
		Vitals:     handler.NewVitalsHandler(ingestion, middleware.NewUserCache(cfg.Cache, rdb, logger), logger),
		Dashboards: handler.NewDashboardHandler(dashboards, logger),
		Devices:    handler.NewDeviceHandler(inventory, logger),
	})

	addr := ":" + cfg.Port
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
