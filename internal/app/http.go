package app

import (
	"github.com/treeprice/catalog-backend/internal/http"
	httpH "github.com/treeprice/catalog-backend/internal/http/handlers"
	"github.com/treeprice/catalog-backend/internal/observability"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

type Handlers struct {
	Health  *httpH.HealthHandler
	Catalog *httpH.CatalogHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(),
		Catalog: httpH.NewCatalogHandler(log, services.Import, services.Tree, services.Statistics),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:            log,
		HealthHandler:  handlers.Health,
		CatalogHandler: handlers.Catalog,
		ServiceName:    cfg.ServiceName,
		EnableOtel:     observability.Enabled(),
	})
}
