package keys

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-signing-secret-at-least-32-chars"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedToken(t *testing.T, secret, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNewService(t *testing.T) {
	t.Parallel()

	t.Run("requires a secret", func(t *testing.T) {
		svc, err := NewService("", nil, testLogger())
		assert.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("creates with static hashes", func(t *testing.T) {
		svc, err := NewService(testSecret, map[string]string{}, testLogger())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestServiceValidateToken(t *testing.T) {
	t.Parallel()

	svc, err := NewService(testSecret, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		token := signedToken(t, testSecret, "vk_42", time.Now().Add(time.Hour))

		claims, err := svc.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "vk_42", claims.KeyID)
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		token := signedToken(t, "another-secret-that-is-long-enough", "vk_42", time.Now().Add(time.Hour))

		_, err := svc.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signedToken(t, testSecret, "vk_42", time.Now().Add(-time.Hour))

		_, err := svc.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.Validate(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": "vk_42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.Validate(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestServiceValidateStatic(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewService(testSecret, map[string]string{"vk_static": string(hash)}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid static key", func(t *testing.T) {
		claims, err := svc.Validate(ctx, "vk_static:s3cret")
		require.NoError(t, err)
		assert.Equal(t, "vk_static", claims.KeyID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := svc.Validate(ctx, "vk_static:nope")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("unknown key id", func(t *testing.T) {
		_, err := svc.Validate(ctx, "vk_other:s3cret")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := svc.Validate(ctx, "not-a-key")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := svc.Validate(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}
