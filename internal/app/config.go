package app

import (
	"time"

	"github.com/treeprice/catalog-backend/internal/platform/logger"
	"github.com/treeprice/catalog-backend/internal/utils"
)

type Config struct {
	Port            string
	ServiceName     string
	Environment     string
	Version         string
	SubtreeCacheTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	environment := utils.GetEnv("ENVIRONMENT", "development", log)
	version := utils.GetEnv("SERVICE_VERSION", "dev", log)
	cacheTTLSeconds := utils.GetEnvAsInt("SUBTREE_CACHE_TTL_SECONDS", 300, log)
	return Config{
		Port:            port,
		ServiceName:     "catalog-backend",
		Environment:     environment,
		Version:         version,
		SubtreeCacheTTL: time.Duration(cacheTTLSeconds) * time.Second,
	}
}
