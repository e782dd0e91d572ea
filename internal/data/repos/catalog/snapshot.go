package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

// NodeSnapshotRepo is the append-only history ledger. Rows are written once
// per node per batch and only ever removed by NodeRepo.DeleteSubtree.
type NodeSnapshotRepo interface {
	Append(ctx context.Context, tx *gorm.DB, snapshots []*domain.NodeSnapshot) error
	// History returns the node's snapshots with update_date inside the
	// half-open window [start, end), ordered by update_date. A nil bound is
	// unbounded on that side.
	History(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, start, end *time.Time) ([]*domain.NodeSnapshot, error)
	// OffersUpdatedBetween reads current offer nodes (not history rows) whose
	// update_date falls in the inclusive window [start, end].
	OffersUpdatedBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*domain.Node, error)
}

type nodeSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) NodeSnapshotRepo {
	repoLog := baseLog.With("repo", "NodeSnapshotRepo")
	return &nodeSnapshotRepo{db: db, log: repoLog}
}

func (sr *nodeSnapshotRepo) Append(ctx context.Context, tx *gorm.DB, snapshots []*domain.NodeSnapshot) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	if len(snapshots) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&snapshots).Error
}

func (sr *nodeSnapshotRepo) History(ctx context.Context, tx *gorm.DB, nodeID uuid.UUID, start, end *time.Time) ([]*domain.NodeSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	query := transaction.WithContext(ctx).
		Where("node_id = ?", nodeID)
	if start != nil {
		query = query.Where("update_date >= ?", *start)
	}
	if end != nil {
		query = query.Where("update_date < ?", *end)
	}

	var results []*domain.NodeSnapshot
	if err := query.
		Order("update_date").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *nodeSnapshotRepo) OffersUpdatedBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*domain.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var results []*domain.Node
	if err := transaction.WithContext(ctx).
		Where("kind = ?", domain.KindOffer).
		Where("update_date >= ? AND update_date <= ?", start, end).
		Order("update_date").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
