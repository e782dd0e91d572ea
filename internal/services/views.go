package services

import (
	"github.com/google/uuid"

	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/isotime"
)

// NodeUpsert is one normalized import item. Price is nil for categories and
// set for offers; the boundary validator enforces that before the engine runs.
type NodeUpsert struct {
	ID       uuid.UUID
	Name     string
	Kind     domain.NodeKind
	ParentID *uuid.UUID
	Price    *int64
}

// TreeView is the nested read model for one subtree. Children is an empty
// slice for a category without items and nil for an offer, so the JSON
// output distinguishes "no children yet" ([]) from "cannot have children"
// (null).
type TreeView struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	ParentID *uuid.UUID  `json:"parentId"`
	Price    *int64      `json:"price"`
	Date     string      `json:"date"`
	Children []*TreeView `json:"children"`
}

// FlatView is the childless node shape used by the sales and statistics
// responses.
type FlatView struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	ParentID *uuid.UUID `json:"parentId"`
	Price    *int64     `json:"price"`
	Date     string     `json:"date"`
}

func flatViewFromNode(n *domain.Node) FlatView {
	return FlatView{
		ID:       n.ID,
		Name:     n.Name,
		Type:     n.Kind.String(),
		ParentID: n.ParentID,
		Price:    n.DisplayPrice(),
		Date:     isotime.Format(n.UpdateDate),
	}
}

func flatViewFromSnapshot(s *domain.NodeSnapshot) FlatView {
	return FlatView{
		ID:       s.NodeID,
		Name:     s.Name,
		Type:     s.Kind.String(),
		ParentID: s.ParentID,
		Price:    s.DisplayPrice(),
		Date:     isotime.Format(s.UpdateDate),
	}
}
