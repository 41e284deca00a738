package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// ErrNotFound indicates the snapshot does not exist.
var ErrNotFound = fmt.Errorf("snapshots: %w", httpx.ErrNotFound)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const snapshotColumns = `id, public_id, name, currency, locale, active, development,
	base_services, other_services, discount_config, COALESCE(created_by, 0), created_at, updated_at`

type encodedPricing struct {
	base, other, discounts []byte
}

func encodePricing(p pricing.Snapshot) (encodedPricing, error) {
	var (
		enc encodedPricing
		err error
	)
	base := p.BaseServices
	if base == nil {
		base = []pricing.ServiceLine{}
	}
	other := p.OtherServices
	if other == nil {
		other = []pricing.ServiceLine{}
	}
	if enc.base, err = json.Marshal(base); err != nil {
		return enc, err
	}
	if enc.other, err = json.Marshal(other); err != nil {
		return enc, err
	}
	cfg := pricing.DefaultDiscountConfig()
	if p.Discounts != nil {
		cfg = *p.Discounts
	}
	enc.discounts, err = json.Marshal(cfg)
	return enc, err
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var (
		s                       Snapshot
		base, other, discountsB []byte
	)
	err := row.Scan(&s.ID, &s.PublicID, &s.Name, &s.Currency, &s.Locale, &s.Active, &s.Pricing.Development,
		&base, &other, &discountsB, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &s.Pricing.BaseServices); err != nil {
			return Snapshot{}, fmt.Errorf("snapshots: decode base services of %d: %w", s.ID, err)
		}
	}
	if len(other) > 0 {
		if err := json.Unmarshal(other, &s.Pricing.OtherServices); err != nil {
			return Snapshot{}, fmt.Errorf("snapshots: decode other services of %d: %w", s.ID, err)
		}
	}
	cfg, _ := pricing.ParseDiscountConfig(discountsB)
	s.Pricing.Discounts = &cfg
	return s, nil
}

// Create inserts a snapshot and returns the stored row.
func (r *Repository) Create(ctx context.Context, s Snapshot) (Snapshot, error) {
	enc, err := encodePricing(s.Pricing)
	if err != nil {
		return Snapshot{}, err
	}
	return scanSnapshot(r.pool.QueryRow(ctx, `
		INSERT INTO package_snapshots (public_id, name, currency, locale, active, development,
			base_services, other_services, discount_config, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, 0), NOW(), NOW())
		RETURNING `+snapshotColumns,
		s.PublicID, s.Name, s.Currency, s.Locale, s.Active, s.Pricing.Development,
		enc.base, enc.other, enc.discounts, s.CreatedBy))
}

// Update replaces the content of a snapshot.
func (r *Repository) Update(ctx context.Context, s Snapshot) (Snapshot, error) {
	enc, err := encodePricing(s.Pricing)
	if err != nil {
		return Snapshot{}, err
	}
	return scanSnapshot(r.pool.QueryRow(ctx, `
		UPDATE package_snapshots
		SET name = $2, currency = $3, locale = $4, active = $5, development = $6,
			base_services = $7, other_services = $8, discount_config = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+snapshotColumns,
		s.ID, s.Name, s.Currency, s.Locale, s.Active, s.Pricing.Development,
		enc.base, enc.other, enc.discounts))
}

// Get fetches a snapshot by id.
func (r *Repository) Get(ctx context.Context, id int64) (Snapshot, error) {
	return scanSnapshot(r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM package_snapshots WHERE id = $1`, id))
}

// GetByPublicID fetches a snapshot by its public identifier.
func (r *Repository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (Snapshot, error) {
	return scanSnapshot(r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM package_snapshots WHERE public_id = $1`, publicID))
}

// List returns snapshots matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Snapshot, error) {
	var (
		where []string
		args  []any
	)
	if filters.Active != nil {
		args = append(args, *filters.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("lower(name) LIKE $%d", len(args)))
	}
	query := `SELECT ` + snapshotColumns + ` FROM package_snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM package_snapshots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRawDiscounts returns the stored discount configuration of every snapshot.
func (r *Repository) ListRawDiscounts(ctx context.Context) ([]RawDiscounts, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, discount_config FROM package_snapshots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RawDiscounts
	for rows.Next() {
		var rd RawDiscounts
		if err := rows.Scan(&rd.ID, &rd.Name, &rd.Raw); err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

// ReplaceDiscounts overwrites the stored discount configuration of one snapshot.
func (r *Repository) ReplaceDiscounts(ctx context.Context, id int64, cfg pricing.DiscountConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE package_snapshots SET discount_config = $2, updated_at = NOW() WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
