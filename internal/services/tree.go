package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos"
	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/dbctx"
	"github.com/treeprice/catalog-backend/internal/platform/isotime"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
)

// TreeService materializes subtrees and handles cascade deletes.
type TreeService interface {
	GetSubtree(dbc dbctx.Context, rootID uuid.UUID) (*TreeView, error)
	DeleteNode(dbc dbctx.Context, id uuid.UUID) error
}

type treeService struct {
	db       *gorm.DB
	log      *logger.Logger
	nodeRepo repos.NodeRepo
	cache    SubtreeCache
}

func NewTreeService(db *gorm.DB, log *logger.Logger, nodeRepo repos.NodeRepo, cache SubtreeCache) TreeService {
	serviceLog := log.With("service", "TreeService")
	return &treeService{
		db:       db,
		log:      serviceLog,
		nodeRepo: nodeRepo,
		cache:    cache,
	}
}

func (ts *treeService) GetSubtree(dbc dbctx.Context, rootID uuid.UUID) (*TreeView, error) {
	var cacheToken string
	if ts.cache != nil {
		view, token, ok := ts.cache.FetchSubtree(dbc.Ctx, rootID)
		if ok {
			return view, nil
		}
		cacheToken = token
	}

	closure, err := ts.nodeRepo.SubtreeClosure(dbc.Ctx, dbc.Tx, rootID)
	if err != nil {
		return nil, fmt.Errorf("subtree closure of %s: %w", rootID, err)
	}
	if len(closure) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rootID)
	}

	view := assembleSubtree(closure, rootID)
	if view == nil {
		// Closure rows without the root itself cannot happen with a correct
		// store; treat it as the node being gone.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rootID)
	}

	if ts.cache != nil && cacheToken != "" {
		ts.cache.StoreSubtree(dbc.Ctx, cacheToken, view)
	}
	return view, nil
}

func (ts *treeService) DeleteNode(dbc dbctx.Context, id uuid.UUID) error {
	err := ts.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		node, err := ts.nodeRepo.Get(dbc.Ctx, tx, id)
		if err != nil {
			return fmt.Errorf("load node %s: %w", id, err)
		}
		if node == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		deleted, err := ts.nodeRepo.DeleteSubtree(dbc.Ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete subtree of %s: %w", id, err)
		}

		// Ancestors lose the deleted subtree's aggregate, but a delete is not
		// an update: their dates stay put.
		if node.ParentID != nil && (node.PriceSum != 0 || node.OfferCount != 0) {
			chain, err := ts.nodeRepo.AncestorChain(dbc.Ctx, tx, *node.ParentID)
			if err != nil {
				return fmt.Errorf("ancestor chain of %s: %w", *node.ParentID, err)
			}
			ancestorIDs := make([]uuid.UUID, 0, len(chain))
			for _, anc := range chain {
				ancestorIDs = append(ancestorIDs, anc.ID)
			}
			if err := ts.nodeRepo.ApplyAggregate(dbc.Ctx, tx, ancestorIDs, -node.PriceSum, -node.OfferCount, nil); err != nil {
				return fmt.Errorf("subtract deleted aggregate: %w", err)
			}
		}

		ts.log.Info("Subtree deleted", "root_id", id.String(), "nodes", deleted)
		return nil
	})
	if err != nil {
		return err
	}

	if ts.cache != nil {
		ts.cache.InvalidateAll(dbc.Ctx)
	}
	return nil
}

// assembleSubtree relinks the flat closure into a nested view. Child order is
// not specified; consumers compare trees structurally.
func assembleSubtree(closure []*domain.Node, rootID uuid.UUID) *TreeView {
	views := make(map[uuid.UUID]*TreeView, len(closure))
	for _, node := range closure {
		view := &TreeView{
			ID:       node.ID,
			Name:     node.Name,
			Type:     node.Kind.String(),
			ParentID: node.ParentID,
			Price:    node.DisplayPrice(),
			Date:     isotime.Format(node.UpdateDate),
		}
		if node.Kind == domain.KindCategory {
			view.Children = []*TreeView{}
		}
		views[node.ID] = view
	}

	for _, view := range views {
		if view.ID == rootID || view.ParentID == nil {
			continue
		}
		if parent, ok := views[*view.ParentID]; ok {
			parent.Children = append(parent.Children, view)
		}
	}

	return views[rootID]
}
