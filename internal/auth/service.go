package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// PermissionResolver resolves the effective permissions of a user.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (rbac.Grants, error)
	WarmCache(ctx context.Context, userID int64) (rbac.Grants, error)
	AccessLevel(ctx context.Context, userID int64, code string) rbac.AccessLevel
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	User      *User
	Auth      *shared.AuthContext
	Token     string
	ExpiresAt time.Time
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	resolver PermissionResolver
	tokens   *TokenService
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, resolver PermissionResolver, tokens *TokenService) *Service {
	return &Service{repo: repo, resolver: resolver, tokens: tokens, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user, recomputes their permissions and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	grants, err := s.resolver.WarmCache(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	principal := &shared.AuthContext{
		UserID:      user.ID,
		Email:       user.Email,
		RoleID:      grants.RoleID,
		RoleName:    grants.RoleName,
		Permissions: grants.Codes,
		Method:      MethodSession,
		IssuedAt:    s.now(),
	}
	result := &LoginResult{User: user, Auth: principal}
	if s.tokens != nil {
		token, expiresAt, err := s.tokens.Issue(Claims{
			UserID:      user.ID,
			Email:       user.Email,
			RoleID:      grants.RoleID,
			Role:        grants.RoleName,
			Permissions: grants.Codes,
		})
		if err != nil {
			return nil, err
		}
		result.Token = token
		result.ExpiresAt = expiresAt
	}
	return result, nil
}

// PrincipalForUser builds an AuthContext from live permission resolution.
func (s *Service) PrincipalForUser(ctx context.Context, userID int64) (*shared.AuthContext, error) {
	if userID <= 0 {
		return nil, errors.New("auth: invalid user id")
	}
	grants, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &shared.AuthContext{
		UserID:      userID,
		RoleID:      grants.RoleID,
		RoleName:    grants.RoleName,
		Permissions: grants.Codes,
		Method:      MethodSession,
		IssuedAt:    s.now(),
	}, nil
}

// PrincipalForToken validates a bearer token and converts its claims.
func (s *Service) PrincipalForToken(raw string) (*shared.AuthContext, error) {
	if s.tokens == nil {
		return nil, ErrInvalidToken
	}
	claims, err := s.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}
	issued := time.Time{}
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	return &shared.AuthContext{
		UserID:      claims.UserID,
		Email:       claims.Email,
		RoleID:      claims.RoleID,
		RoleName:    claims.Role,
		Permissions: claims.Permissions,
		Method:      MethodToken,
		IssuedAt:    issued,
	}, nil
}

// Levels returns the access level the user holds on each code.
func (s *Service) Levels(ctx context.Context, userID int64, codes []string) map[string]rbac.AccessLevel {
	levels := make(map[string]rbac.AccessLevel, len(codes))
	for _, code := range codes {
		levels[code] = s.resolver.AccessLevel(ctx, userID, code)
	}
	return levels
}

// User loads the account behind a principal.
func (s *Service) User(ctx context.Context, userID int64) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
