package quotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
)

// TxRepository is the set of writes that run inside one transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, prefix, period string) (int64, error)
	Insert(ctx context.Context, q Quotation) (Quotation, error)
	UpdateDraft(ctx context.Context, q Quotation) (Quotation, error)
	Transition(ctx context.Context, id int64, from, to Status, actorID int64, reason *string) (Quotation, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	q queryer
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const quotationColumns = `id, ref_id, doc_number, snapshot_id, client_name, client_email, status, currency,
	valid_until, pricing, preview, COALESCE(notes, ''), COALESCE(created_by, 0), approved_by, approved_at,
	rejected_by, rejected_at, reject_reason, created_at, updated_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var (
		q                  Quotation
		status             string
		pricingB, previewB []byte
	)
	err := row.Scan(&q.ID, &q.RefID, &q.DocNumber, &q.SnapshotID, &q.ClientName, &q.ClientEmail, &status, &q.Currency,
		&q.ValidUntil, &pricingB, &previewB, &q.Notes, &q.CreatedBy, &q.ApprovedBy, &q.ApprovedAt,
		&q.RejectedBy, &q.RejectedAt, &q.RejectReason, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, ErrNotFound
		}
		return Quotation{}, err
	}
	q.Status = Status(status)
	if err := json.Unmarshal(pricingB, &q.Pricing); err != nil {
		return Quotation{}, fmt.Errorf("quotations: decode pricing of %d: %w", q.ID, err)
	}
	if err := json.Unmarshal(previewB, &q.Preview); err != nil {
		return Quotation{}, fmt.Errorf("quotations: decode preview of %d: %w", q.ID, err)
	}
	return q, nil
}

func (t *txRepo) NextSequence(ctx context.Context, prefix, period string) (int64, error) {
	var seq int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, period, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, period) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, prefix, period).Scan(&seq)
	return seq, err
}

func (t *txRepo) Insert(ctx context.Context, q Quotation) (Quotation, error) {
	pricingB, err := json.Marshal(q.Pricing)
	if err != nil {
		return Quotation{}, err
	}
	previewB, err := json.Marshal(q.Preview)
	if err != nil {
		return Quotation{}, err
	}
	return scanQuotation(t.q.QueryRow(ctx, `
		INSERT INTO quotations (ref_id, doc_number, snapshot_id, client_name, client_email, status, currency,
			valid_until, pricing, preview, notes, idempotency_key, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, 0), NOW(), NOW())
		RETURNING `+quotationColumns,
		q.RefID, q.DocNumber, q.SnapshotID, q.ClientName, q.ClientEmail, string(q.Status), q.Currency,
		q.ValidUntil, pricingB, previewB, q.Notes, q.idempotencyKey, q.CreatedBy))
}

func (t *txRepo) UpdateDraft(ctx context.Context, q Quotation) (Quotation, error) {
	pricingB, err := json.Marshal(q.Pricing)
	if err != nil {
		return Quotation{}, err
	}
	previewB, err := json.Marshal(q.Preview)
	if err != nil {
		return Quotation{}, err
	}
	updated, err := scanQuotation(t.q.QueryRow(ctx, `
		UPDATE quotations
		SET client_name = $2, client_email = $3, valid_until = $4, pricing = $5, preview = $6,
			notes = NULLIF($7, ''), currency = $8, updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'
		RETURNING `+quotationColumns,
		q.ID, q.ClientName, q.ClientEmail, q.ValidUntil, pricingB, previewB, q.Notes, q.Currency))
	if errors.Is(err, ErrNotFound) {
		return Quotation{}, ErrInvalidStatus
	}
	return updated, err
}

func (t *txRepo) Transition(ctx context.Context, id int64, from, to Status, actorID int64, reason *string) (Quotation, error) {
	var actor *int64
	if actorID > 0 {
		actor = &actorID
	}
	updated, err := scanQuotation(t.q.QueryRow(ctx, `
		UPDATE quotations
		SET status = $3,
			approved_by = CASE WHEN $3 = 'APPROVED' THEN $4 ELSE approved_by END,
			approved_at = CASE WHEN $3 = 'APPROVED' THEN NOW() ELSE approved_at END,
			rejected_by = CASE WHEN $3 = 'REJECTED' THEN $4 ELSE rejected_by END,
			rejected_at = CASE WHEN $3 = 'REJECTED' THEN NOW() ELSE rejected_at END,
			reject_reason = CASE WHEN $3 = 'REJECTED' THEN $5 ELSE reject_reason END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+quotationColumns,
		id, string(from), string(to), actor, reason))
	if errors.Is(err, ErrNotFound) {
		return Quotation{}, ErrInvalidStatus
	}
	return updated, err
}

// Get fetches a quotation by id.
func (r *Repository) Get(ctx context.Context, id int64) (Quotation, error) {
	return scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
}

// GetByIdempotencyKey fetches the quotation created under key.
func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (Quotation, error) {
	return scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE idempotency_key = $1`, key))
}

// List returns quotations matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Quotation, error) {
	var (
		where []string
		args  []any
	)
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.SnapshotID > 0 {
		args = append(args, filters.SnapshotID)
		where = append(where, fmt.Sprintf("snapshot_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("(lower(client_name) LIKE $%[1]d OR lower(client_email) LIKE $%[1]d OR lower(doc_number) LIKE $%[1]d)", len(args)))
	}
	query := `SELECT ` + quotationColumns + ` FROM quotations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ExpireOverdue marks submitted quotations past valid_until as expired and
// returns the affected rows.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE quotations SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'SUBMITTED' AND valid_until < $1
		RETURNING `+quotationColumns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
