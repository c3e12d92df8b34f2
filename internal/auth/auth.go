// Package auth gates the admin surface behind a PIN and issues short-lived
// JWTs for authenticated sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pitstock/pitstock/internal/settings"
)

const TokenExpiry = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPINSet           = errors.New("no PIN has been set")
	ErrPINRequired        = errors.New("PIN is required")
	ErrPINTooShort        = errors.New("PIN must be at least 4 characters")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Service handles admin authentication.
type Service struct {
	settings  *settings.Service
	jwtSecret []byte
}

// NewService creates a new auth service. An empty jwtSecret is loaded from
// the settings table, generated and persisted on first run.
func NewService(svc *settings.Service, jwtSecret string) (*Service, error) {
	secret := []byte(jwtSecret)

	if len(secret) == 0 {
		var err error
		secret, err = loadOrGenerateSecret(svc)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		settings:  svc,
		jwtSecret: secret,
	}, nil
}

func loadOrGenerateSecret(svc *settings.Service) ([]byte, error) {
	ctx := context.Background()
	stored, err := svc.Get(ctx, settings.KeyJWTSecret)

	switch {
	case err == nil && stored != "":
		secret, decErr := hex.DecodeString(stored)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode stored JWT secret: %w", decErr)
		}
		return secret, nil

	case errors.Is(err, settings.ErrNotFound) || (err == nil && stored == ""):
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		if err := svc.Set(ctx, settings.KeyJWTSecret, hex.EncodeToString(secret)); err != nil {
			return nil, fmt.Errorf("failed to persist JWT secret: %w", err)
		}
		return secret, nil

	default:
		return nil, fmt.Errorf("failed to load JWT secret: %w", err)
	}
}

// SetPIN sets or updates the admin PIN.
func (s *Service) SetPIN(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrPINRequired
	}
	if len(pin) < 4 {
		return ErrPINTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	if err := s.settings.Set(ctx, settings.KeyPINHash, string(hash)); err != nil {
		return fmt.Errorf("failed to save PIN: %w", err)
	}
	return nil
}

// ValidatePIN checks the provided PIN against the stored hash.
func (s *Service) ValidatePIN(ctx context.Context, pin string) error {
	hash, err := s.settings.Get(ctx, settings.KeyPINHash)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return ErrNoPINSet
		}
		return fmt.Errorf("failed to get PIN hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// IsPINSet returns true if an admin PIN has been configured.
func (s *Service) IsPINSet(ctx context.Context) bool {
	_, err := s.settings.Get(ctx, settings.KeyPINHash)
	return err == nil
}

// GenerateToken creates a new admin session token.
func (s *Service) GenerateToken() (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pitstock",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a session token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
