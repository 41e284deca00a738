package snapshots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ErrValidation marks invalid snapshot content.
var ErrValidation = fmt.Errorf("snapshots: %w", httpx.ErrValidation)

// RepositoryPort defines data access for snapshots.
type RepositoryPort interface {
	Create(ctx context.Context, s Snapshot) (Snapshot, error)
	Update(ctx context.Context, s Snapshot) (Snapshot, error)
	Get(ctx context.Context, id int64) (Snapshot, error)
	GetByPublicID(ctx context.Context, publicID uuid.UUID) (Snapshot, error)
	List(ctx context.Context, filters ListFilters) ([]Snapshot, error)
	Delete(ctx context.Context, id int64) error
	ListRawDiscounts(ctx context.Context) ([]RawDiscounts, error)
	ReplaceDiscounts(ctx context.Context, id int64, cfg pricing.DiscountConfig) error
}

// PreviewObserver is notified of every computed preview.
type PreviewObserver interface {
	PreviewComputed(mode string)
}

// Service orchestrates snapshot persistence and pricing.
type Service struct {
	repo     RepositoryPort
	cache    *Cache
	audit    shared.AuditRecorder
	observer PreviewObserver
	logger   *slog.Logger
}

// NewService wires the snapshot service. cache, audit and observer may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit shared.AuditRecorder, observer PreviewObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, observer: observer, logger: logger}
}

// Create validates and stores a new snapshot.
func (s *Service) Create(ctx context.Context, input Input) (Snapshot, error) {
	snap, err := fromInput(input)
	if err != nil {
		return Snapshot{}, err
	}
	snap.PublicID = uuid.New()
	snap.CreatedBy = shared.ActorID(ctx)
	created, err := s.repo.Create(ctx, snap)
	if err != nil {
		return Snapshot{}, err
	}
	s.afterMutation(ctx, "snapshot.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update replaces the content of an existing snapshot.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Snapshot, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	next, err := fromInput(input)
	if err != nil {
		return Snapshot{}, err
	}
	if input.Active == nil {
		next.Active = current.Active
	}
	next.ID = current.ID
	next.PublicID = current.PublicID
	next.CreatedBy = current.CreatedBy
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Snapshot{}, err
	}
	s.afterMutation(ctx, "snapshot.update", updated.ID, map[string]any{"name": updated.Name, "active": updated.Active})
	return updated, nil
}

// Get returns one snapshot.
func (s *Service) Get(ctx context.Context, id int64) (Snapshot, error) {
	return s.repo.Get(ctx, id)
}

// List returns snapshots matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Snapshot, error) {
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

// Delete removes a snapshot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.afterMutation(ctx, "snapshot.delete", id, nil)
	return nil
}

// Preview computes the cost breakdown of a stored snapshot.
func (s *Service) Preview(ctx context.Context, id int64) (pricing.Preview, error) {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return pricing.Preview{}, err
	}
	return s.calculate(snap.Pricing), nil
}

// PreviewAdHoc computes the cost breakdown of unsaved pricing content.
func (s *Service) PreviewAdHoc(_ context.Context, p pricing.Snapshot) (pricing.Preview, error) {
	if err := validatePricing(p); err != nil {
		return pricing.Preview{}, err
	}
	return s.calculate(p), nil
}

// PublicProposal returns the public view of an active snapshot.
func (s *Service) PublicProposal(ctx context.Context, publicID uuid.UUID) (Proposal, error) {
	key, err := s.cache.BuildKey(ctx, keyProposal(publicID.String()))
	if err != nil {
		s.logger.Warn("proposal cache key", slog.Any("error", err))
		return s.loadProposal(ctx, publicID)
	}
	var proposal Proposal
	err = s.cache.FetchJSON(ctx, key, &proposal, func(ctx context.Context) (any, error) {
		return s.loadProposal(ctx, publicID)
	})
	if err == nil {
		return proposal, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Proposal{}, err
	}
	s.logger.Warn("proposal cache fetch", slog.Any("error", err))
	return s.loadProposal(ctx, publicID)
}

func (s *Service) loadProposal(ctx context.Context, publicID uuid.UUID) (Proposal, error) {
	snap, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		return Proposal{}, err
	}
	if !snap.Active {
		return Proposal{}, ErrNotFound
	}
	preview := s.calculate(snap.Pricing)
	formatter, err := pricing.NewFormatter(snap.Locale, snap.Currency)
	if err != nil {
		formatter, err = pricing.NewFormatter(DefaultLocale, DefaultCurrency)
		if err != nil {
			return Proposal{}, err
		}
	}
	return Proposal{
		PublicID:  snap.PublicID,
		Name:      snap.Name,
		Currency:  formatter.Currency(),
		Pricing:   snap.Pricing,
		Preview:   preview,
		Formatted: formatter.Totals(preview),
	}, nil
}

// MigrateLegacy rewrites every stored legacy discount configuration into the
// unified shape. With dryRun set nothing is written.
func (s *Service) MigrateLegacy(ctx context.Context, dryRun bool) ([]MigrationResult, error) {
	rows, err := s.repo.ListRawDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	var results []MigrationResult
	for _, row := range rows {
		if !pricing.IsLegacyDiscountConfig(row.Raw) {
			continue
		}
		cfg, _ := pricing.ParseDiscountConfig(row.Raw)
		result := MigrationResult{ID: row.ID, Name: row.Name, Mode: cfg.Mode(), Migrated: cfg}
		if !dryRun {
			if err := s.repo.ReplaceDiscounts(ctx, row.ID, cfg); err != nil {
				return results, fmt.Errorf("snapshots: migrate %d: %w", row.ID, err)
			}
			result.Applied = true
		}
		results = append(results, result)
	}
	if !dryRun && len(results) > 0 {
		s.afterMutation(ctx, "snapshot.discounts.migrate", 0, map[string]any{"rows": len(results)})
	}
	return results, nil
}

func (s *Service) calculate(p pricing.Snapshot) pricing.Preview {
	preview := pricing.Calculate(p)
	if s.observer != nil {
		s.observer.PreviewComputed(string(preview.Mode))
	}
	return preview
}

func (s *Service) afterMutation(ctx context.Context, action string, id int64, meta map[string]any) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump proposal cache", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	entityID := strconv.FormatInt(id, 10)
	if id == 0 {
		entityID = "*"
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "snapshot",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit snapshot", slog.String("action", action), slog.Any("error", err))
	}
}

func fromInput(input Input) (Snapshot, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Snapshot{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	if _, err := pricing.NewFormatter(locale, currency); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validatePricing(input.Pricing); err != nil {
		return Snapshot{}, err
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	p := input.Pricing
	if p.Discounts == nil {
		cfg := pricing.DefaultDiscountConfig()
		p.Discounts = &cfg
	}
	return Snapshot{Name: name, Currency: currency, Locale: locale, Active: active, Pricing: p}, nil
}

func validatePricing(p pricing.Snapshot) error {
	if p.Development < 0 {
		return fmt.Errorf("%w: development must not be negative", ErrValidation)
	}
	for _, lines := range [][]pricing.ServiceLine{p.BaseServices, p.OtherServices} {
		for _, line := range lines {
			if line.Price < 0 || line.FreeMonths < 0 || line.PaidMonths < 0 {
				return fmt.Errorf("%w: service %q has negative values", ErrValidation, line.Name)
			}
		}
	}
	seen := make(map[string]struct{}, len(p.BaseServices))
	for _, line := range p.BaseServices {
		id := strings.TrimSpace(line.ID)
		if id == "" {
			return fmt.Errorf("%w: base service %q needs an id", ErrValidation, line.Name)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate base service id %q", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	if p.Discounts == nil {
		return nil
	}
	percents := []float64{p.Discounts.PayInFull, p.Discounts.Direct}
	switch rule := p.Discounts.Rule.(type) {
	case pricing.GeneralDiscount:
		percents = append(percents, rule.Percent)
	case pricing.GranularDiscount:
		percents = append(percents, rule.Development)
		for _, v := range rule.BaseServices {
			percents = append(percents, v)
		}
		for _, v := range rule.OtherServices {
			percents = append(percents, v)
		}
	}
	for _, pct := range percents {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: discount percentages must be within 0..100", ErrValidation)
		}
	}
	return nil
}
