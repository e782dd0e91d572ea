package db

import (
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Node{},
		&domain.NodeSnapshot{},
	)
}
