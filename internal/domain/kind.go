package domain

import "fmt"

// NodeKind is immutable for the lifetime of a node. The numeric encoding
// (1-based) is part of the storage schema.
type NodeKind int

const (
	KindCategory NodeKind = 1
	KindOffer    NodeKind = 2
)

const (
	kindCategoryName = "CATEGORY"
	kindOfferName    = "OFFER"
)

func (k NodeKind) String() string {
	switch k {
	case KindCategory:
		return kindCategoryName
	case KindOffer:
		return kindOfferName
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

func ParseKind(s string) (NodeKind, error) {
	switch s {
	case kindCategoryName:
		return KindCategory, nil
	case kindOfferName:
		return KindOffer, nil
	default:
		return 0, fmt.Errorf("unknown node type %q", s)
	}
}
