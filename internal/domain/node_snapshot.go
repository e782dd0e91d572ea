package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeSnapshot is one append-only history row: the full denormalized state of
// a node as of the batch that stamped its update date. Rows are never
// updated; they are only removed when their node is cascade-deleted.
type NodeSnapshot struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NodeID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_node_snapshots_node_date,priority:1" json:"node_id"`
	Name       string     `gorm:"not null;column:name" json:"name"`
	Kind       NodeKind   `gorm:"not null;column:kind" json:"kind"`
	ParentID   *uuid.UUID `gorm:"type:uuid;column:parent_id" json:"parent_id"`
	PriceSum   int64      `gorm:"not null;default:0;column:price_sum" json:"price_sum"`
	OfferCount int64      `gorm:"not null;default:0;column:offer_count" json:"offer_count"`
	UpdateDate time.Time  `gorm:"not null;index:idx_node_snapshots_node_date,priority:2" json:"update_date"`
}

func (NodeSnapshot) TableName() string { return "node_snapshots" }

// DisplayPrice follows the same zero-count guard as Node.DisplayPrice.
func (s *NodeSnapshot) DisplayPrice() *int64 {
	if s.OfferCount == 0 {
		return nil
	}
	price := s.PriceSum / s.OfferCount
	return &price
}
