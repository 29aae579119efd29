package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateSubject = "form-export"

var ErrInvalidState = errors.New("invalid or expired authorization state")

// StateClaims travel through the authorization provider in the OAuth
// state parameter and identify the export the callback belongs to.
type StateClaims struct {
	jwt.RegisteredClaims
	Handle   string `json:"handle"`
	ExportID string `json:"export_id"`
}

// StateSigner issues and verifies OAuth state tokens.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	return &StateSigner{secret: []byte(secret), ttl: ttl}
}

func (s *StateSigner) Sign(handle string, exportID uuid.UUID) (string, error) {
	now := time.Now()
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   stateSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Handle:   handle,
		ExportID: exportID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Parse verifies a state token and returns its claims.
func (s *StateSigner) Parse(tokenStr string) (*StateClaims, uuid.UUID, error) {
	if tokenStr == "" {
		return nil, uuid.Nil, ErrInvalidState
	}
	token, err := jwt.ParseWithClaims(tokenStr, &StateClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithSubject(stateSubject), jwt.WithExpirationRequired())
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid || claims.Handle == "" {
		return nil, uuid.Nil, ErrInvalidState
	}
	id, err := uuid.Parse(claims.ExportID)
	if err != nil {
		return nil, uuid.Nil, ErrInvalidState
	}
	return claims, id, nil
}
