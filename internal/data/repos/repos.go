package repos

import (
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos/catalog"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

type NodeRepo = catalog.NodeRepo
type NodeSnapshotRepo = catalog.NodeSnapshotRepo

var NewNodeRepo = catalog.NewNodeRepo
var NewNodeSnapshotRepo = catalog.NewNodeSnapshotRepo

type Set struct {
	Node         NodeRepo
	NodeSnapshot NodeSnapshotRepo
}

func Wire(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Node:         catalog.NewNodeRepo(db, log),
		NodeSnapshot: catalog.NewNodeSnapshotRepo(db, log),
	}
}
