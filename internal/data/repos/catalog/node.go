package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

// NodeRepo is the transactional store boundary for catalog nodes. Every
// method accepts an optional caller-owned transaction; passing nil falls back
// to the repo's own handle.
type NodeRepo interface {
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Node, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, forUpdate bool) ([]*domain.Node, error)
	// AncestorChain returns the node itself first, then each parent up to the
	// root. An unknown id yields an empty chain, not an error.
	AncestorChain(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]*domain.Node, error)
	// SubtreeClosure returns the node plus every transitive descendant in one
	// set-returning query, so concurrent mutations cannot tear the snapshot.
	SubtreeClosure(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]*domain.Node, error)
	Insert(ctx context.Context, tx *gorm.DB, nodes []*domain.Node) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	// ApplyAggregate adds the deltas to price_sum/offer_count on every id in
	// one statement; all rows or none. A non-nil asOf also stamps the update
	// date, a nil one leaves dates alone (deletes shift aggregates without
	// counting as an update).
	ApplyAggregate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, priceDelta, countDelta int64, asOf *time.Time) error
	// DeleteSubtree removes the node, its descendants and their snapshot rows.
	// Returns the number of nodes deleted.
	DeleteSubtree(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error)
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	repoLog := baseLog.With("repo", "NodeRepo")
	return &nodeRepo{db: db, log: repoLog}
}

const ancestorChainSQL = `
WITH RECURSIVE chain AS (
	SELECT id, name, kind, parent_id, price_sum, offer_count, update_date, 0 AS depth
	FROM nodes WHERE id = ?
	UNION ALL
	SELECT n.id, n.name, n.kind, n.parent_id, n.price_sum, n.offer_count, n.update_date, c.depth + 1
	FROM nodes n JOIN chain c ON n.id = c.parent_id
)
SELECT id, name, kind, parent_id, price_sum, offer_count, update_date
FROM chain ORDER BY depth`

const subtreeClosureSQL = `
WITH RECURSIVE subtree AS (
	SELECT id, name, kind, parent_id, price_sum, offer_count, update_date
	FROM nodes WHERE id = ?
	UNION ALL
	SELECT n.id, n.name, n.kind, n.parent_id, n.price_sum, n.offer_count, n.update_date
	FROM nodes n JOIN subtree s ON n.parent_id = s.id
)
SELECT id, name, kind, parent_id, price_sum, offer_count, update_date FROM subtree`

func (nr *nodeRepo) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var node domain.Node
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (nr *nodeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, forUpdate bool) ([]*domain.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var results []*domain.Node
	if len(ids) == 0 {
		return results, nil
	}

	query := transaction.WithContext(ctx)
	if forUpdate && transaction.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (nr *nodeRepo) AncestorChain(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]*domain.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var results []*domain.Node
	if err := transaction.WithContext(ctx).
		Raw(ancestorChainSQL, id).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (nr *nodeRepo) SubtreeClosure(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]*domain.Node, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var results []*domain.Node
	if err := transaction.WithContext(ctx).
		Raw(subtreeClosureSQL, id).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (nr *nodeRepo) Insert(ctx context.Context, tx *gorm.DB, nodes []*domain.Node) error {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if len(nodes) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&nodes).Error
}

func (nr *nodeRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.Node{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (nr *nodeRepo) ApplyAggregate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, priceDelta, countDelta int64, asOf *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if len(ids) == 0 {
		return nil
	}
	updates := map[string]any{
		"price_sum":   gorm.Expr("price_sum + ?", priceDelta),
		"offer_count": gorm.Expr("offer_count + ?", countDelta),
	}
	if asOf != nil {
		updates["update_date"] = *asOf
	}
	return transaction.WithContext(ctx).
		Model(&domain.Node{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

func (nr *nodeRepo) DeleteSubtree(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	closure, err := nr.SubtreeClosure(ctx, transaction, id)
	if err != nil {
		return 0, err
	}
	if len(closure) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(closure))
	for _, node := range closure {
		ids = append(ids, node.ID)
	}

	if err := transaction.WithContext(ctx).
		Where("node_id IN ?", ids).
		Delete(&domain.NodeSnapshot{}).Error; err != nil {
		return 0, err
	}

	res := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&domain.Node{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
