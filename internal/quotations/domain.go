package quotations

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// Status is the lifecycle state of a quotation.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

var (
	ErrNotFound      = fmt.Errorf("quotations: %w", httpx.ErrNotFound)
	ErrInvalidStatus = fmt.Errorf("quotations: invalid status transition: %w", httpx.ErrConflict)
	ErrValidation    = fmt.Errorf("quotations: %w", httpx.ErrValidation)
	ErrInFlight      = fmt.Errorf("quotations: request with this idempotency key is in progress: %w", httpx.ErrConflict)
)

// Quotation freezes the pricing of a snapshot for one client.
type Quotation struct {
	ID           int64            `json:"id"`
	RefID        uuid.UUID        `json:"ref_id"`
	DocNumber    string           `json:"doc_number"`
	SnapshotID   int64            `json:"snapshot_id"`
	ClientName   string           `json:"client_name"`
	ClientEmail  string           `json:"client_email"`
	Status       Status           `json:"status"`
	Currency     string           `json:"currency"`
	ValidUntil   time.Time        `json:"valid_until"`
	Pricing      pricing.Snapshot `json:"pricing"`
	Preview      pricing.Preview  `json:"preview"`
	Notes        string           `json:"notes,omitempty"`
	CreatedBy    int64            `json:"created_by"`
	ApprovedBy   *int64           `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time       `json:"approved_at,omitempty"`
	RejectedBy   *int64           `json:"rejected_by,omitempty"`
	RejectedAt   *time.Time       `json:"rejected_at,omitempty"`
	RejectReason *string          `json:"reject_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	idempotencyKey string
}

// CreateInput starts a quotation from a snapshot.
type CreateInput struct {
	SnapshotID  int64      `json:"snapshot_id" validate:"required,gt=0"`
	ClientName  string     `json:"client_name" validate:"required,max=200"`
	ClientEmail string     `json:"client_email" validate:"required,email"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	Notes       string     `json:"notes,omitempty" validate:"max=2000"`
}

// UpdateInput changes a DRAFT quotation. Reprice reloads the snapshot pricing.
type UpdateInput struct {
	ClientName  *string    `json:"client_name,omitempty" validate:"omitempty,max=200"`
	ClientEmail *string    `json:"client_email,omitempty" validate:"omitempty,email"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	Notes       *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Reprice     bool       `json:"reprice"`
}

// RejectInput carries the rejection reason.
type RejectInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ListFilters narrows quotation listings.
type ListFilters struct {
	Status     Status
	SnapshotID int64
	Search     string
	Limit      int
	Offset     int
}

// FormatDocNumber renders QT-YYMM-NNNN.
func FormatDocNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("QT-%s-%04d", at.Format("0601"), seq)
}
