package cli

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

//go:embed matrix.yaml
var defaultMatrix []byte

// Matrix is the role/permission layout applied by seed.
type Matrix struct {
	Roles []MatrixRole `yaml:"roles"`
}

// MatrixRole describes one role and its grants.
type MatrixRole struct {
	Name        string                      `yaml:"name"`
	Rank        int                         `yaml:"rank"`
	Description string                      `yaml:"description"`
	Grants      map[string]rbac.AccessLevel `yaml:"grants"`
}

// LoadMatrix parses a matrix document. An empty input yields the built-in matrix.
func LoadMatrix(r io.Reader) (Matrix, error) {
	data := defaultMatrix
	if r != nil {
		raw, err := io.ReadAll(r)
		if err != nil {
			return Matrix{}, err
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			data = raw
		}
	}
	var m Matrix
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Matrix{}, fmt.Errorf("seed: parse matrix: %w", err)
	}
	if len(m.Roles) == 0 {
		return Matrix{}, errors.New("seed: matrix has no roles")
	}
	for _, role := range m.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return Matrix{}, errors.New("seed: role name required")
		}
	}
	return m, nil
}

// Catalogue manages permissions and role grants.
type Catalogue interface {
	EnsurePermission(ctx context.Context, code, category, displayName string) (rbac.Permission, error)
	SetRolePermission(ctx context.Context, roleID int64, code string, level rbac.AccessLevel) error
}

// Accounts upserts roles and users.
type Accounts interface {
	EnsureRole(ctx context.Context, name, description string, rank int) (int64, error)
	EnsureUser(ctx context.Context, email, name, passwordHash string, roleID int64) (int64, error)
}

// SeedOptions defines the flags of the seed command.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	Matrix        io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

// Seeder applies the permission catalogue, the role matrix and the admin account.
type Seeder struct {
	catalogue Catalogue
	accounts  Accounts
	cost      int
}

// NewSeeder constructs a Seeder.
func NewSeeder(catalogue Catalogue, accounts Accounts) *Seeder {
	return &Seeder{catalogue: catalogue, accounts: accounts, cost: bcrypt.DefaultCost}
}

// SeedCommand runs the seed and prints progress.
func (s *Seeder) SeedCommand(ctx context.Context, opts SeedOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if err := s.Seed(ctx, opts); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	return 0
}

// Seed is idempotent; running it twice leaves the same state.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) error {
	out := opts.Stdout
	if out == nil {
		out = io.Discard
	}
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" || len(opts.AdminPassword) < 8 {
		return errors.New("admin email and a password of at least 8 characters are required")
	}
	matrix, err := LoadMatrix(opts.Matrix)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, "→ Seeding permissions...")
	known := make(map[string]bool)
	for _, spec := range shared.CoreScopes() {
		if _, err := s.catalogue.EnsurePermission(ctx, spec.Code, spec.Category, spec.DisplayName); err != nil {
			return fmt.Errorf("permission %s: %w", spec.Code, err)
		}
		known[spec.Code] = true
	}

	_, _ = fmt.Fprintln(out, "→ Seeding roles...")
	roleIDs := make(map[string]int64, len(matrix.Roles))
	for _, role := range matrix.Roles {
		id, err := s.accounts.EnsureRole(ctx, role.Name, role.Description, role.Rank)
		if err != nil {
			return fmt.Errorf("role %s: %w", role.Name, err)
		}
		roleIDs[role.Name] = id
		for code, level := range role.Grants {
			if !known[code] {
				return fmt.Errorf("role %s: unknown permission %s", role.Name, code)
			}
			if err := s.catalogue.SetRolePermission(ctx, id, code, level); err != nil {
				return fmt.Errorf("role %s grant %s: %w", role.Name, code, err)
			}
		}
	}

	adminRole, ok := roleIDs[rbac.RoleSuperAdmin]
	if !ok {
		return fmt.Errorf("matrix must define %s", rbac.RoleSuperAdmin)
	}
	_, _ = fmt.Fprintln(out, "→ Seeding admin user...")
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), s.cost)
	if err != nil {
		return err
	}
	if _, err := s.accounts.EnsureUser(ctx, email, "Administrator", string(hash), adminRole); err != nil {
		return fmt.Errorf("admin user: %w", err)
	}
	_, _ = fmt.Fprintf(out, "✓ Seeded %d permission(s), %d role(s), admin %s\n", len(known), len(roleIDs), email)
	return nil
}

// PGAccounts upserts roles and users with pgx.
type PGAccounts struct {
	pool *pgxpool.Pool
}

// NewPGAccounts constructs PGAccounts.
func NewPGAccounts(pool *pgxpool.Pool) *PGAccounts {
	return &PGAccounts{pool: pool}
}

// EnsureRole inserts or refreshes a role by name.
func (a *PGAccounts) EnsureRole(ctx context.Context, name, description string, rank int) (int64, error) {
	var id int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, rank, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, rank = EXCLUDED.rank, updated_at = NOW()
		RETURNING id`, strings.ToUpper(strings.TrimSpace(name)), description, rank).Scan(&id)
	return id, err
}

// EnsureUser creates the user or moves an existing one to roleID. Existing passwords are kept.
func (a *PGAccounts) EnsureUser(ctx context.Context, email, name, passwordHash string, roleID int64) (int64, error) {
	var id int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET role_id = EXCLUDED.role_id, is_active = TRUE, updated_at = NOW()
		RETURNING id`, email, name, passwordHash, roleID).Scan(&id)
	return id, err
}
