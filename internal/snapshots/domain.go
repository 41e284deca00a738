package snapshots

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// Defaults applied to new snapshots.
const (
	DefaultCurrency = "USD"
	DefaultLocale   = "es"
)

// Snapshot is a persisted, priced package offering.
type Snapshot struct {
	ID        int64            `json:"id"`
	PublicID  uuid.UUID        `json:"public_id"`
	Name      string           `json:"name"`
	Currency  string           `json:"currency"`
	Locale    string           `json:"locale"`
	Active    bool             `json:"active"`
	Pricing   pricing.Snapshot `json:"pricing"`
	CreatedBy int64            `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Input creates or replaces the content of a snapshot.
type Input struct {
	Name     string           `json:"name" validate:"required,max=160"`
	Currency string           `json:"currency" validate:"omitempty,len=3"`
	Locale   string           `json:"locale" validate:"omitempty,max=16"`
	Active   *bool            `json:"active"`
	Pricing  pricing.Snapshot `json:"pricing"`
}

// ListFilters narrows snapshot listings.
type ListFilters struct {
	Active *bool
	Search string
	Limit  int
	Offset int
}

// RawDiscounts is the stored discount configuration of one snapshot.
type RawDiscounts struct {
	ID   int64
	Name string
	Raw  []byte
}

// MigrationResult reports what the legacy discount migration did to one row.
type MigrationResult struct {
	ID       int64                  `json:"id"`
	Name     string                 `json:"name"`
	Mode     pricing.DiscountMode   `json:"mode"`
	Migrated pricing.DiscountConfig `json:"config"`
	Applied  bool                   `json:"applied"`
}

// Proposal is the public view of an active snapshot.
type Proposal struct {
	PublicID  uuid.UUID               `json:"public_id"`
	Name      string                  `json:"name"`
	Currency  string                  `json:"currency"`
	Pricing   pricing.Snapshot        `json:"pricing"`
	Preview   pricing.Preview         `json:"preview"`
	Formatted pricing.FormattedTotals `json:"formatted"`
}
