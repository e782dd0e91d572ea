package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/treeprice/catalog-backend/internal/http/handlers"
	httpMW "github.com/treeprice/catalog-backend/internal/http/middleware"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler  *httpH.HealthHandler
	CatalogHandler *httpH.CatalogHandler

	ServiceName string
	EnableOtel  bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	if cfg.EnableOtel {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	if cfg.CatalogHandler != nil {
		r.POST("/imports", cfg.CatalogHandler.Import)
		r.DELETE("/delete/:id", cfg.CatalogHandler.Delete)
		r.GET("/nodes/:id", cfg.CatalogHandler.GetNodes)
		r.GET("/sales", cfg.CatalogHandler.Sales)
		r.GET("/node/:id/statistic", cfg.CatalogHandler.NodeStatistic)
	}

	return r
}
