package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos"
	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/dbctx"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

// ImportService applies one batch of node upserts atomically: inserts and
// field updates, plus incremental (price_sum, offer_count) deltas along every
// affected ancestor chain, plus one history snapshot per touched node. All
// nodes a batch touches share the batch timestamp.
type ImportService interface {
	ImportBatch(dbc dbctx.Context, items []NodeUpsert, asOf time.Time) error
}

type importService struct {
	db           *gorm.DB
	log          *logger.Logger
	nodeRepo     repos.NodeRepo
	snapshotRepo repos.NodeSnapshotRepo
	cache        SubtreeCache
}

func NewImportService(db *gorm.DB, log *logger.Logger, nodeRepo repos.NodeRepo, snapshotRepo repos.NodeSnapshotRepo, cache SubtreeCache) ImportService {
	serviceLog := log.With("service", "ImportService")
	return &importService{
		db:           db,
		log:          serviceLog,
		nodeRepo:     nodeRepo,
		snapshotRepo: snapshotRepo,
		cache:        cache,
	}
}

// chainDelta is the pending contribution to one ancestor's aggregate pair.
type chainDelta struct {
	price int64
	count int64
}

func (is *importService) ImportBatch(dbc dbctx.Context, items []NodeUpsert, asOf time.Time) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.Name == "" {
			return fmt.Errorf("%w: node %s has no name", ErrValidation, item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}

	err := is.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return is.apply(dbc, tx, items, ids, asOf)
	})
	if err != nil {
		return err
	}

	if is.cache != nil {
		is.cache.InvalidateAll(dbc.Ctx)
	}
	is.log.Info("Batch imported", "items", len(items), "as_of", asOf)
	return nil
}

func (is *importService) apply(dbc dbctx.Context, tx *gorm.DB, items []NodeUpsert, ids []uuid.UUID, asOf time.Time) error {
	stored, err := is.nodeRepo.GetByIDs(dbc.Ctx, tx, ids, true)
	if err != nil {
		return fmt.Errorf("load batch nodes: %w", err)
	}
	existing := make(map[uuid.UUID]*domain.Node, len(stored))
	for _, node := range stored {
		existing[node.ID] = node
	}

	for _, item := range items {
		if old, ok := existing[item.ID]; ok && old.Kind != item.Kind {
			return fmt.Errorf("%w: %s is %s", ErrTypeChange, item.ID, old.Kind)
		}
	}

	if err := is.validateParents(dbc, tx, items, existing); err != nil {
		return err
	}

	// Inserts go in before any chain is walked: a batch may create a parent
	// and its children in one request, in any order.
	var inserts []*domain.Node
	for _, item := range items {
		if _, ok := existing[item.ID]; ok {
			continue
		}
		node := &domain.Node{
			ID:         item.ID,
			Name:       item.Name,
			Kind:       item.Kind,
			ParentID:   item.ParentID,
			UpdateDate: asOf,
		}
		if item.Kind == domain.KindOffer && item.Price != nil {
			node.PriceSum = *item.Price
			node.OfferCount = 1
		}
		inserts = append(inserts, node)
	}
	if err := is.nodeRepo.Insert(dbc.Ctx, tx, inserts); err != nil {
		return fmt.Errorf("insert nodes: %w", err)
	}

	// Own-row updates for pre-existing nodes, against stored state. A parent
	// change is checked against the target's current ancestor chain first;
	// updates apply one at a time so each check sees the moves already made
	// by this batch.
	for _, item := range items {
		old, ok := existing[item.ID]
		if !ok {
			continue
		}
		if item.ParentID != nil && !uuidPtrEqual(old.ParentID, item.ParentID) {
			chain, err := is.nodeRepo.AncestorChain(dbc.Ctx, tx, *item.ParentID)
			if err != nil {
				return fmt.Errorf("ancestor chain of %s: %w", *item.ParentID, err)
			}
			for _, anc := range chain {
				if anc.ID == old.ID {
					return fmt.Errorf("%w: cannot move %s under its own descendant %s", ErrValidation, old.ID, *item.ParentID)
				}
			}
		}
		fields := map[string]any{
			"name":        item.Name,
			"parent_id":   item.ParentID,
			"update_date": asOf,
		}
		if item.Kind == domain.KindOffer && item.Price != nil {
			fields["price_sum"] = *item.Price
		}
		if err := is.nodeRepo.UpdateFields(dbc.Ctx, tx, old.ID, fields); err != nil {
			return fmt.Errorf("update node %s: %w", old.ID, err)
		}
	}

	contrib := make(map[uuid.UUID]chainDelta)
	chainOrder := make([]uuid.UUID, 0)

	// walk accumulates (priceDelta, countDelta) onto every ancestor reachable
	// from the given parent. A nil or unknown parent is a no-op: root inserts
	// and orphan-parent inserts simply skip propagation.
	walk := func(parent *uuid.UUID, dp, dc int64) error {
		if parent == nil {
			return nil
		}
		chain, err := is.nodeRepo.AncestorChain(dbc.Ctx, tx, *parent)
		if err != nil {
			return fmt.Errorf("ancestor chain of %s: %w", *parent, err)
		}
		for _, anc := range chain {
			if _, ok := contrib[anc.ID]; !ok {
				chainOrder = append(chainOrder, anc.ID)
			}
			cd := contrib[anc.ID]
			cd.price += dp
			cd.count += dc
			contrib[anc.ID] = cd
		}
		return nil
	}

	for _, item := range items {
		old, ok := existing[item.ID]
		if !ok {
			// Insert: a new offer contributes its price; a new category
			// starts empty and only stamps dates up the chain.
			var dp, dc int64
			if item.Kind == domain.KindOffer && item.Price != nil {
				dp, dc = *item.Price, 1
			}
			if err := walk(item.ParentID, dp, dc); err != nil {
				return err
			}
			continue
		}

		if !uuidPtrEqual(old.ParentID, item.ParentID) {
			// Reparent: undo the node's full contribution on the old chain,
			// replay it on the new one. A category carries its accumulated
			// aggregate, an offer carries (price, 1).
			oldSum, oldCount := old.PriceSum, old.OfferCount
			newSum, newCount := oldSum, oldCount
			if item.Kind == domain.KindOffer && item.Price != nil {
				newSum, newCount = *item.Price, 1
			}
			if err := walk(old.ParentID, -oldSum, -oldCount); err != nil {
				return err
			}
			if err := walk(item.ParentID, newSum, newCount); err != nil {
				return err
			}
			continue
		}

		// Same parent: only an offer's price change moves the aggregate, but
		// the chain is walked regardless so ancestors pick up the batch date.
		var dp int64
		if item.Kind == domain.KindOffer && item.Price != nil {
			dp = *item.Price - old.PriceSum
		}
		if err := walk(old.ParentID, dp, 0); err != nil {
			return err
		}
	}

	// Group ancestors by identical delta so each group is one additive
	// UPDATE; zero deltas still run to stamp update_date on the chain.
	// Groups fire in first-touched chain order so concurrent batches acquire
	// row locks in a stable order.
	groups := make(map[chainDelta][]uuid.UUID)
	groupOrder := make([]chainDelta, 0)
	for _, id := range chainOrder {
		cd := contrib[id]
		if _, ok := groups[cd]; !ok {
			groupOrder = append(groupOrder, cd)
		}
		groups[cd] = append(groups[cd], id)
	}
	for _, cd := range groupOrder {
		if err := is.nodeRepo.ApplyAggregate(dbc.Ctx, tx, groups[cd], cd.price, cd.count, &asOf); err != nil {
			return fmt.Errorf("apply aggregate deltas: %w", err)
		}
	}

	return is.snapshotTouched(dbc, tx, ids, chainOrder)
}

// validateParents rejects items that would corrupt the tree shape: a parent
// that is an offer, a node declared as its own parent, and parent loops
// closed entirely by nodes created in this batch. A parent id that exists
// neither in the batch nor in storage stays tolerated as an orphan root.
func (is *importService) validateParents(dbc dbctx.Context, tx *gorm.DB, items []NodeUpsert, existing map[uuid.UUID]*domain.Node) error {
	batchKinds := make(map[uuid.UUID]domain.NodeKind, len(items))
	for _, item := range items {
		batchKinds[item.ID] = item.Kind
	}

	lookup := make([]uuid.UUID, 0)
	lookupSeen := make(map[uuid.UUID]struct{})
	for _, item := range items {
		if item.ParentID == nil {
			continue
		}
		if *item.ParentID == item.ID {
			return fmt.Errorf("%w: node %s cannot be its own parent", ErrValidation, item.ID)
		}
		if _, ok := batchKinds[*item.ParentID]; ok {
			continue
		}
		if _, ok := lookupSeen[*item.ParentID]; ok {
			continue
		}
		lookupSeen[*item.ParentID] = struct{}{}
		lookup = append(lookup, *item.ParentID)
	}

	storedParents, err := is.nodeRepo.GetByIDs(dbc.Ctx, tx, lookup, false)
	if err != nil {
		return fmt.Errorf("load declared parents: %w", err)
	}
	storedKinds := make(map[uuid.UUID]domain.NodeKind, len(storedParents))
	for _, parent := range storedParents {
		storedKinds[parent.ID] = parent.Kind
	}

	for _, item := range items {
		if item.ParentID == nil {
			continue
		}
		kind, ok := batchKinds[*item.ParentID]
		if !ok {
			kind, ok = storedKinds[*item.ParentID]
		}
		if ok && kind != domain.KindCategory {
			return fmt.Errorf("%w: parent %s of node %s is not a category", ErrValidation, *item.ParentID, item.ID)
		}
	}

	// Parent links between nodes created in this batch can close a loop
	// before any of them reaches storage; walk those links in memory.
	newParents := make(map[uuid.UUID]uuid.UUID)
	for _, item := range items {
		if _, ok := existing[item.ID]; ok || item.ParentID == nil {
			continue
		}
		newParents[item.ID] = *item.ParentID
	}
	for id := range newParents {
		visited := map[uuid.UUID]struct{}{id: {}}
		cur := id
		for {
			parent, ok := newParents[cur]
			if !ok {
				break
			}
			if _, loop := visited[parent]; loop {
				return fmt.Errorf("%w: parent loop through node %s", ErrValidation, parent)
			}
			visited[parent] = struct{}{}
			cur = parent
		}
	}
	return nil
}

// snapshotTouched appends one history row per node whose update_date advanced
// in this batch, reading post-batch state so snapshots reflect what committed.
func (is *importService) snapshotTouched(dbc dbctx.Context, tx *gorm.DB, batchIDs, ancestorIDs []uuid.UUID) error {
	touched := make(map[uuid.UUID]struct{}, len(batchIDs)+len(ancestorIDs))
	all := make([]uuid.UUID, 0, len(batchIDs)+len(ancestorIDs))
	for _, id := range append(append([]uuid.UUID{}, batchIDs...), ancestorIDs...) {
		if _, ok := touched[id]; ok {
			continue
		}
		touched[id] = struct{}{}
		all = append(all, id)
	}

	nodes, err := is.nodeRepo.GetByIDs(dbc.Ctx, tx, all, false)
	if err != nil {
		return fmt.Errorf("reload touched nodes: %w", err)
	}

	snapshots := make([]*domain.NodeSnapshot, 0, len(nodes))
	for _, node := range nodes {
		snapshots = append(snapshots, &domain.NodeSnapshot{
			NodeID:     node.ID,
			Name:       node.Name,
			Kind:       node.Kind,
			ParentID:   node.ParentID,
			PriceSum:   node.PriceSum,
			OfferCount: node.OfferCount,
			UpdateDate: node.UpdateDate,
		})
	}
	if err := is.snapshotRepo.Append(dbc.Ctx, tx, snapshots); err != nil {
		return fmt.Errorf("append snapshots: %w", err)
	}
	return nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
