package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	"github.com/odyssey-erp/odyssey-quotes/internal/snapshots"
)

const (
	approvalModule    = "quotations"
	idempotencyModule = "quotations.create"
	docPrefix         = "QT"
	defaultLimit      = 50
	maxLimit          = 200
)

// RepositoryPort defines data access for quotations.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Quotation, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Quotation, error)
	List(ctx context.Context, filters ListFilters) ([]Quotation, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]Quotation, error)
}

// SnapshotSource loads the snapshot a quotation is priced from.
type SnapshotSource interface {
	Get(ctx context.Context, id int64) (snapshots.Snapshot, error)
}

// IdempotencyPort guards create requests against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// Service implements the quotation workflow.
type Service struct {
	repo         RepositoryPort
	snapshots    SnapshotSource
	idempotency  IdempotencyPort
	approvals    ApprovalPort
	audit        shared.AuditRecorder
	logger       *slog.Logger
	validityDays int
	now          func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo         RepositoryPort
	Snapshots    SnapshotSource
	Idempotency  IdempotencyPort
	Approvals    ApprovalPort
	Audit        shared.AuditRecorder
	Logger       *slog.Logger
	ValidityDays int
}

// NewService wires the quotation service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	days := deps.ValidityDays
	if days <= 0 {
		days = 30
	}
	return &Service{
		repo:         deps.Repo,
		snapshots:    deps.Snapshots,
		idempotency:  deps.Idempotency,
		approvals:    deps.Approvals,
		audit:        deps.Audit,
		logger:       logger,
		validityDays: days,
		now:          time.Now,
	}
}

// Create prices a new DRAFT quotation from a snapshot. When key is set, a
// replay with the same key returns the quotation created by the first call
// and a false created flag.
func (s *Service) Create(ctx context.Context, input CreateInput, key string) (Quotation, bool, error) {
	key = strings.TrimSpace(key)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				return Quotation{}, false, err
			}
			existing, err := s.repo.GetByIdempotencyKey(ctx, key)
			if errors.Is(err, ErrNotFound) {
				return Quotation{}, false, ErrInFlight
			}
			return existing, false, err
		}
	}
	q, err := s.create(ctx, input, key)
	if err != nil {
		if key != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Quotation{}, false, err
	}
	return q, true, nil
}

func (s *Service) create(ctx context.Context, input CreateInput, key string) (Quotation, error) {
	now := s.now()
	snap, err := s.snapshots.Get(ctx, input.SnapshotID)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return Quotation{}, fmt.Errorf("%w: snapshot %d not found", ErrValidation, input.SnapshotID)
		}
		return Quotation{}, err
	}
	if !snap.Active {
		return Quotation{}, fmt.Errorf("%w: snapshot %d is inactive", ErrValidation, input.SnapshotID)
	}
	validUntil := now.AddDate(0, 0, s.validityDays)
	if input.ValidUntil != nil {
		validUntil = *input.ValidUntil
	}
	if !validUntil.After(now) {
		return Quotation{}, fmt.Errorf("%w: valid_until must be in the future", ErrValidation)
	}
	q := Quotation{
		RefID:          uuid.New(),
		SnapshotID:     snap.ID,
		ClientName:     strings.TrimSpace(input.ClientName),
		ClientEmail:    strings.ToLower(strings.TrimSpace(input.ClientEmail)),
		Status:         StatusDraft,
		Currency:       snap.Currency,
		ValidUntil:     validUntil,
		Pricing:        snap.Pricing,
		Preview:        pricing.Calculate(snap.Pricing),
		Notes:          input.Notes,
		CreatedBy:      shared.ActorID(ctx),
		idempotencyKey: key,
	}
	if q.ClientName == "" {
		return Quotation{}, fmt.Errorf("%w: client name required", ErrValidation)
	}
	var created Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, docPrefix, now.Format("0601"))
		if err != nil {
			return fmt.Errorf("next doc number: %w", err)
		}
		q.DocNumber = FormatDocNumber(now, seq)
		created, err = tx.Insert(ctx, q)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}
	s.record(ctx, "quotation.create", created, map[string]any{"doc_number": created.DocNumber, "snapshot_id": created.SnapshotID})
	return created, nil
}

// Get returns one quotation.
func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotations matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Quotation, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filters.Status)
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultLimit
	}
	if filters.Limit > maxLimit {
		filters.Limit = maxLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.List(ctx, filters)
}

// Update edits a DRAFT quotation.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if q.Status != StatusDraft {
		return Quotation{}, fmt.Errorf("%w: only DRAFT quotations can be updated", ErrInvalidStatus)
	}
	if input.ClientName != nil {
		q.ClientName = strings.TrimSpace(*input.ClientName)
		if q.ClientName == "" {
			return Quotation{}, fmt.Errorf("%w: client name required", ErrValidation)
		}
	}
	if input.ClientEmail != nil {
		q.ClientEmail = strings.ToLower(strings.TrimSpace(*input.ClientEmail))
	}
	if input.Notes != nil {
		q.Notes = *input.Notes
	}
	if input.ValidUntil != nil {
		if !input.ValidUntil.After(s.now()) {
			return Quotation{}, fmt.Errorf("%w: valid_until must be in the future", ErrValidation)
		}
		q.ValidUntil = *input.ValidUntil
	}
	if input.Reprice {
		snap, err := s.snapshots.Get(ctx, q.SnapshotID)
		if err != nil {
			return Quotation{}, err
		}
		q.Pricing = snap.Pricing
		q.Currency = snap.Currency
		q.Preview = pricing.Calculate(snap.Pricing)
	}
	var updated Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateDraft(ctx, q)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}
	s.record(ctx, "quotation.update", updated, map[string]any{"repriced": input.Reprice})
	return updated, nil
}

// History returns the approval trail of a quotation, oldest first.
func (s *Service) History(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, approvalModule, q.RefID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// Submit moves a DRAFT quotation to SUBMITTED.
func (s *Service) Submit(ctx context.Context, id int64) (Quotation, error) {
	return s.transition(ctx, id, StatusDraft, StatusSubmitted, shared.ApprovalSubmit, "")
}

// Approve moves a SUBMITTED quotation to APPROVED.
func (s *Service) Approve(ctx context.Context, id int64) (Quotation, error) {
	return s.transition(ctx, id, StatusSubmitted, StatusApproved, shared.ApprovalApprove, "")
}

// Reject moves a SUBMITTED quotation to REJECTED.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (Quotation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Quotation{}, fmt.Errorf("%w: reason required", ErrValidation)
	}
	return s.transition(ctx, id, StatusSubmitted, StatusRejected, shared.ApprovalReject, reason)
}

func (s *Service) transition(ctx context.Context, id int64, from, to Status, action shared.ApprovalAction, reason string) (Quotation, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if current.Status != from {
		return Quotation{}, fmt.Errorf("%w: %s quotation cannot become %s", ErrInvalidStatus, current.Status, to)
	}
	if to == StatusApproved && current.ValidUntil.Before(s.now()) {
		return Quotation{}, fmt.Errorf("%w: quotation expired on %s", ErrInvalidStatus, current.ValidUntil.Format(time.DateOnly))
	}
	actor := shared.ActorID(ctx)
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	var updated Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.Transition(ctx, id, from, to, actor, reasonPtr)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}
	if s.approvals != nil && actor > 0 {
		err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   updated.RefID,
			ActorID: actor,
			Action:  action,
			Note:    reason,
		})
		if err != nil {
			s.logger.Warn("record quotation approval", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, "quotation."+strings.ToLower(string(to)), updated, map[string]any{"from": from, "reason": reason})
	return updated, nil
}

// ExpireOverdue expires every SUBMITTED quotation whose validity has passed and
// returns how many were expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, q := range expired {
		s.record(ctx, "quotation.expired", q, map[string]any{"valid_until": q.ValidUntil})
	}
	if len(expired) > 0 {
		s.logger.Info("quotations expired", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (s *Service) record(ctx context.Context, action string, q Quotation, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "quotation",
		EntityID: strconv.FormatInt(q.ID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit quotation", slog.String("action", action), slog.Any("error", err))
	}
}
