package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos"
	"github.com/treeprice/catalog-backend/internal/platform/dbctx"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

// salesWindow is how far back from the requested date the sales view reaches.
const salesWindow = 24 * time.Hour

// StatisticsService answers history and recent-sales queries over the
// snapshot ledger and the live node table.
type StatisticsService interface {
	// NodeStatistics returns the node's snapshot history inside the half-open
	// window [start, end); nil bounds are unbounded. Unknown ids fail with
	// ErrNotFound.
	NodeStatistics(dbc dbctx.Context, nodeID uuid.UUID, start, end *time.Time) ([]FlatView, error)
	// OffersForDate returns current offers updated within the 24 hours up to
	// and including the given date.
	OffersForDate(dbc dbctx.Context, date time.Time) ([]FlatView, error)
}

type statisticsService struct {
	db           *gorm.DB
	log          *logger.Logger
	nodeRepo     repos.NodeRepo
	snapshotRepo repos.NodeSnapshotRepo
}

func NewStatisticsService(db *gorm.DB, log *logger.Logger, nodeRepo repos.NodeRepo, snapshotRepo repos.NodeSnapshotRepo) StatisticsService {
	serviceLog := log.With("service", "StatisticsService")
	return &statisticsService{
		db:           db,
		log:          serviceLog,
		nodeRepo:     nodeRepo,
		snapshotRepo: snapshotRepo,
	}
}

func (ss *statisticsService) NodeStatistics(dbc dbctx.Context, nodeID uuid.UUID, start, end *time.Time) ([]FlatView, error) {
	node, err := ss.nodeRepo.Get(dbc.Ctx, dbc.Tx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load node %s: %w", nodeID, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}

	history, err := ss.snapshotRepo.History(dbc.Ctx, dbc.Tx, nodeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", nodeID, err)
	}

	views := make([]FlatView, 0, len(history))
	for _, snapshot := range history {
		views = append(views, flatViewFromSnapshot(snapshot))
	}
	return views, nil
}

func (ss *statisticsService) OffersForDate(dbc dbctx.Context, date time.Time) ([]FlatView, error) {
	offers, err := ss.snapshotRepo.OffersUpdatedBetween(dbc.Ctx, dbc.Tx, date.Add(-salesWindow), date)
	if err != nil {
		return nil, fmt.Errorf("offers in sales window: %w", err)
	}

	views := make([]FlatView, 0, len(offers))
	for _, offer := range offers {
		views = append(views, flatViewFromNode(offer))
	}
	return views, nil
}
