package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	require.NoError(t, err)
	issuer, err := NewIssuerFromBase64(secret, time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestGenerateAndValidate(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Generate("ops", true)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "три части JWT")

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "voxmesh", claims.Issuer)
}

func TestValidateInvalidTokens(t *testing.T) {
	issuer := newTestIssuer(t)

	for _, invalid := range []string{
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	} {
		_, err := issuer.Validate(invalid)
		assert.ErrorIs(t, err, ErrInvalidToken, invalid)
	}

	// Токен другого ключа
	token, err := newTestIssuer(t).Generate("other", true)
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Подпись none отвергается
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Operator: "x", IsAdmin: true})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, err := issuer.Generate("ops", false)
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWeakSecret(t *testing.T) {
	_, err := NewIssuer([]byte("short"), 0)
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewIssuerFromBase64("%%%", 0)
	assert.Error(t, err)
}
