package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	apphttp "github.com/yungbote/teamchat-backend/internal/http"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
	"github.com/yungbote/teamchat-backend/internal/realtime/bus"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Hub      *realtime.Hub
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	bus          bus.Bus
	attachments  attachmentBackend
	otelShutdown func(context.Context) error
}

// OpenDB connects and migrates; used by serve, migrate and seed.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	dbService, err := db.Open(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}
	return dbService, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	dbService, err := OpenDB(log, cfg)
	if err != nil {
		return nil, err
	}
	theDB := dbService.DB()

	backend, err := resolveAttachmentStore(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	var envelopeBus bus.Bus
	if cfg.RedisAddr != "" {
		envelopeBus, err = bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisChannel,
			Metrics:  metrics,
		})
		if err != nil {
			_ = backend.Close()
			_ = dbService.Close()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
	}

	hub := realtime.NewHub(log, realtime.HubConfig{BufferSize: cfg.HubBufferSize, Metrics: metrics})
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, hub, envelopeBus, backend.Store, metrics)
	if err != nil {
		if envelopeBus != nil {
			_ = envelopeBus.Close()
		}
		_ = backend.Close()
		_ = dbService.Close()
		return nil, err
	}
	handlerset := wireHandlers(log, cfg, serviceset, hub, dbService)
	middleware := wireMiddleware(log, serviceset)
	server := wireServer(log, cfg, handlerset, middleware, metrics, backend.MediaRoot)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Hub:          hub,
		Server:       server,
		Metrics:      metrics,
		dbService:    dbService,
		bus:          envelopeBus,
		attachments:  backend,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.bus != nil {
		err := a.bus.StartForwarder(gctx, func(env domainchat.Envelope) {
			a.Hub.Publish(env.AccountID, env)
		})
		if err != nil {
			return fmt.Errorf("start redis forwarder: %w", err)
		}
		if c, ok := a.bus.(interface{ Client() *goredis.Client }); ok {
			a.Metrics.StartRedisCollector(gctx, a.Log, c.Client())
		}
	}
	a.Metrics.StartPostgresCollector(gctx, a.Log, a.DB)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run(a.Cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("Shutting down")
		// Closing the hub first ends long-lived SSE requests so Shutdown can drain.
		a.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Log.Warn("redis bus close failed", "error", err)
		}
	}
	if a.attachments.Close != nil {
		if err := a.attachments.Close(); err != nil {
			a.Log.Warn("attachment store close failed", "error", err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otelShutdown(ctx)
	}
	a.Log.Sync()
}
