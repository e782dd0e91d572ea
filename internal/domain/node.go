package domain

import (
	"time"

	"github.com/google/uuid"
)

// Node is one entry of the catalog tree. Categories never store a price
// directly: PriceSum/OfferCount is the running aggregate over every offer in
// the subtree, and the displayed price is derived from it. An offer's own
// price is stored as PriceSum with OfferCount fixed at 1, so the derivation
// is uniform across kinds.
type Node struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"not null;column:name" json:"name"`
	Kind       NodeKind   `gorm:"not null;column:kind" json:"kind"`
	ParentID   *uuid.UUID `gorm:"type:uuid;index;column:parent_id" json:"parent_id"`
	PriceSum   int64      `gorm:"not null;default:0;column:price_sum" json:"price_sum"`
	OfferCount int64      `gorm:"not null;default:0;column:offer_count" json:"offer_count"`
	UpdateDate time.Time  `gorm:"not null;column:update_date" json:"update_date"`
}

func (Node) TableName() string { return "nodes" }

// DisplayPrice is the integer mean over the subtree's offers, or nil while
// the subtree holds none. Division only happens on the non-zero branch.
func (n *Node) DisplayPrice() *int64 {
	if n.OfferCount == 0 {
		return nil
	}
	price := n.PriceSum / n.OfferCount
	return &price
}
