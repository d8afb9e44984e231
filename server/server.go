package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackmarket/cache"
	"trackmarket/config"
	"trackmarket/core/audio"
	"trackmarket/core/auth"
	"trackmarket/core/market"
	"trackmarket/core/notify"
	"trackmarket/core/pricing"
	"trackmarket/core/settlement"
	"trackmarket/db"
	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/repository"
	"trackmarket/storage"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	transferPause   = 2 * time.Second
)

// App is the wired marketplace: repositories, caches and services on top of
// live MySQL, Redis and MinIO connections.
type App struct {
	Market *market.Service
	Users  repository.UserRepository
	Hub    *notify.Hub
	Worker *settlement.Worker
	Tokens *auth.TokenIssuer
}

// NewApp connects the backing services. Call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.InsecureJWTSecret() {
		logger.Warn("JWT_SECRET is empty or the development default, tokens can be forged; set JWT_SECRET")
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		return nil, err
	}
	if err := db.InitDB(); err != nil {
		return nil, err
	}
	if err := db.ConnectGormDB(cfg); err != nil {
		return nil, err
	}
	if err := db.AutoMigrateModels(&model.User{}); err != nil {
		return nil, err
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		return nil, err
	}

	// 初始化 MinIO 客户端
	objects, err := storage.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		// listing still works without storage, tracks just have no CDN URL
		logger.Warn("MinIO bucket unavailable", logger.ErrorField(err))
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	ledgerRepo := repository.NewMySQLLedgerRepository(db.DB)
	userRepo := repository.NewGormUserRepository(db.GormDB)

	if cfg.SeedDemo {
		if err := db.SeedDemo(ctx, userRepo, db.DB, cfg.DemoPassword); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	queue := cache.NewSettlementQueue(db.RedisClient)
	hub := notify.NewHub(cache.NewNotificationInbox(db.RedisClient))

	svc := market.NewService(
		trackRepo,
		ledgerRepo,
		objects,
		cache.NewEstimateCache(db.RedisClient, cfg.EstimateTTL),
		queue,
		hub,
		pricing.New(),
		market.Options{
			SettlementDelay: cfg.SettlementDelay,
			SenderName:      cfg.SenderName,
			MaxUploadBytes:  cfg.MaxUploadMB << 20,
			Prober:          prober(cfg),
		},
	)
	worker := settlement.NewWorker(ledgerRepo, queue, hub, settlement.Options{
		Delay:         cfg.SettlementDelay,
		Poll:          cfg.SettlementPoll,
		MaxAttempts:   cfg.SettlementMaxAttempts,
		SenderName:    cfg.SenderName,
		TransferPause: transferPause,
	})

	return &App{
		Market: svc,
		Users:  userRepo,
		Hub:    hub,
		Worker: worker,
		Tokens: auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
	}, nil
}

func prober(cfg *config.Config) market.DurationProber {
	// a nil *audio.Prober must not become a non-nil interface
	if p := audio.NewProber(cfg.FFprobePath); p != nil {
		return p
	}
	return nil
}

// Close releases the connections opened by NewApp.
func (a *App) Close() {
	if err := db.CloseRedis(); err != nil {
		logger.Warn("关闭Redis连接时发生错误", logger.ErrorField(err))
	}
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("failed to close GORM connection", logger.ErrorField(err))
	}
	if db.DB != nil {
		db.DB.Close()
	}
}

// Start connects the backing services and serves until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := NewAPIHandler(app.Market, app.Users, app.Tokens, app.Hub, cfg)

	// 设置服务器超时
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewRouter(handler),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Hub.Run(gctx) })
	g.Go(func() error { return app.Worker.Run(gctx) })
	g.Go(func() error {
		logger.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
