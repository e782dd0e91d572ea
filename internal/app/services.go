package app

import (
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
	"github.com/treeprice/catalog-backend/internal/services"
)

type Services struct {
	Import     services.ImportService
	Tree       services.TreeService
	Statistics services.StatisticsService
}

func wireServices(db *gorm.DB, log *logger.Logger, reposet repos.Set, cache services.SubtreeCache) Services {
	log.Info("Wiring services...")
	return Services{
		Import:     services.NewImportService(db, log, reposet.Node, reposet.NodeSnapshot, cache),
		Tree:       services.NewTreeService(db, log, reposet.Node, cache),
		Statistics: services.NewStatisticsService(db, log, reposet.Node, reposet.NodeSnapshot),
	}
}
