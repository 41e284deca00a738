package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("test-secret-key", time.Hour)

	raw, expiresAt, err := ts.Issue(Claims{UserID: 42, Role: "ADMIN", Permissions: []string{"quotations.manage"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ts.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, []string{"quotations.manage"}, claims.Permissions)
}

func TestTokenRejectsExpired(t *testing.T) {
	ts := NewTokenService("test-secret-key", time.Minute)
	issued := time.Now().Add(-2 * time.Minute)
	ts.now = func() time.Time { return issued }
	raw, _, err := ts.Issue(Claims{UserID: 1})
	require.NoError(t, err)

	ts.now = time.Now
	_, err = ts.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsOtherSecretAndAlgorithm(t *testing.T) {
	raw, _, err := NewTokenService("one", time.Hour).Issue(Claims{UserID: 1})
	require.NoError(t, err)
	_, err = NewTokenService("two", time.Hour).Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokenService("one", time.Hour).Validate(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRequiresUser(t *testing.T) {
	ts := NewTokenService("s", time.Hour)
	raw, _, err := ts.Issue(Claims{})
	require.NoError(t, err)
	_, err = ts.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
