package model

import "time"

// IDType is the kind of vendor identifier carried by federal award data.
type IDType string

const (
	IDTypeUEI  IDType = "uei"
	IDTypeDUNS IDType = "duns"
	IDTypeCAGE IDType = "cage"
)

// Valid reports whether t is a known identifier type.
func (t IDType) Valid() bool {
	switch t {
	case IDTypeUEI, IDTypeDUNS, IDTypeCAGE:
		return true
	}
	return false
}

// VendorIdentifier binds one identifier value to its owning vendor.
// A value is unique within its type at any point in time; novations are
// recorded as new rows, never overwrites.
type VendorIdentifier struct {
	Type       IDType    `json:"type"`
	Value      string    `json:"value"`
	VendorID   string    `json:"vendor_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Vendor is a canonical entity resolved across UEI/DUNS/CAGE fragments.
// Merges are append-only: an absorbed vendor's id survives as an alias
// of the canonical one.
type Vendor struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Identifiers []VendorIdentifier `json:"identifiers,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// VendorAlias records that an old canonical id now resolves to another
// vendor. The chain from any alias must terminate at a canonical vendor.
type VendorAlias struct {
	FromID     string    `json:"from_id"`
	ToID       string    `json:"to_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
