package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/clients/redis"
	"github.com/treeprice/catalog-backend/internal/data/db"
	"github.com/treeprice/catalog-backend/internal/data/repos"
	catalogHTTP "github.com/treeprice/catalog-backend/internal/http"
	"github.com/treeprice/catalog-backend/internal/observability"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
	"github.com/treeprice/catalog-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *catalogHTTP.Server
	Cfg      Config
	Repos    repos.Set
	Services Services

	cache        *redis.SubtreeCache
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	cache, err := redis.NewSubtreeCache(log, cfg.SubtreeCacheTTL)
	if err != nil {
		log.Warn("Redis cache unavailable, serving uncached", "error", err)
		cache = nil
	}
	var svcCache services.SubtreeCache
	if cache != nil {
		svcCache = cache
	}

	reposet := repos.Wire(theDB, log)
	serviceset := wireServices(theDB, log, reposet, svcCache)
	handlers := wireHandlers(log, serviceset)
	server := wireServer(log, cfg, handlers)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		cache:        cache,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run() error {
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Log.Sync()
}
