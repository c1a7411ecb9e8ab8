// Package keys validates the virtual keys callers attach to generation
// requests. Keys are JWT-shaped tokens signed with the configured
// secret; long-lived static keys are supported as a fallback via bcrypt
// hashes loaded at startup.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when a virtual key fails validation for any
// reason. The cause is logged, never surfaced to callers.
var ErrInvalidKey = errors.New("invalid virtual key")

// Claims identifies the virtual key a validated token belongs to.
type Claims struct {
	KeyID string
}

// Validator is the slice of this service the orchestrator needs for its
// fail-fast authorization check.
type Validator interface {
	Validate(ctx context.Context, virtualKey string) (Claims, error)
}

// Service validates virtual keys.
type Service struct {
	secret       []byte
	staticHashes map[string]string
	logger       *slog.Logger
}

// NewService creates a key validation Service. staticHashes maps key ids
// to bcrypt hashes of their static secrets and may be nil.
func NewService(secret string, staticHashes map[string]string, logger *slog.Logger) (*Service, error) {
	if secret == "" {
		return nil, errors.New("signing secret cannot be empty")
	}
	return &Service{
		secret:       []byte(secret),
		staticHashes: staticHashes,
		logger:       logger.With("component", "key_service"),
	}, nil
}

// Validate checks a virtual key and returns its claims. JWT-shaped keys
// are verified against the signing secret; "keyID:secret" pairs are
// checked against the static hash table.
func (s *Service) Validate(ctx context.Context, virtualKey string) (Claims, error) {
	if virtualKey == "" {
		return Claims{}, ErrInvalidKey
	}

	if strings.Count(virtualKey, ".") == 2 {
		return s.validateToken(ctx, virtualKey)
	}
	return s.validateStatic(ctx, virtualKey)
}

func (s *Service) validateToken(ctx context.Context, token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		s.logger.DebugContext(ctx, "virtual key token rejected", "error", err)
		return Claims{}, ErrInvalidKey
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		s.logger.DebugContext(ctx, "virtual key token missing subject")
		return Claims{}, ErrInvalidKey
	}

	return Claims{KeyID: sub}, nil
}

func (s *Service) validateStatic(ctx context.Context, virtualKey string) (Claims, error) {
	keyID, secret, ok := strings.Cut(virtualKey, ":")
	if !ok {
		return Claims{}, ErrInvalidKey
	}

	hash, found := s.staticHashes[keyID]
	if !found {
		return Claims{}, ErrInvalidKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		s.logger.DebugContext(ctx, "static virtual key rejected", "key_id", keyID)
		return Claims{}, ErrInvalidKey
	}

	return Claims{KeyID: keyID}, nil
}

var _ Validator = (*Service)(nil)
