// Package handoff keeps a quiz across the authorization redirect.
//
// A record is written once before the user leaves for the consent screen
// and read once when they come back. Reads consume the record, records
// expire on their own, and every save gets a fresh handle so concurrent
// exports never share a slot.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/model"
)

var (
	// ErrNotFound covers missing, expired, already consumed and
	// unauthenticated records alike.
	ErrNotFound = errors.New("handoff record not found")
)

// Record is the data carried across the redirect.
type Record struct {
	ExportID  uuid.UUID          `json:"exportId"`
	Title     string             `json:"title"`
	Document  model.QuizDocument `json:"document"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Store persists handoff records for a bounded time.
type Store interface {
	Save(ctx context.Context, rec *Record) (handle string, err error)
	Load(ctx context.Context, handle string) (*Record, error)
}

// RedisStore is a Store backed by Redis with sealed values.
type RedisStore struct {
	rdb  *redis.Client
	seal *sealer
	ttl  time.Duration
	log  zerolog.Logger
}

func NewRedisStore(rdb *redis.Client, secret string, ttl time.Duration, log zerolog.Logger) (*RedisStore, error) {
	s, err := newSealer(secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, errors.New("handoff ttl must be positive")
	}
	return &RedisStore{
		rdb:  rdb,
		seal: s,
		ttl:  ttl,
		log:  log.With().Str("component", "handoff").Logger(),
	}, nil
}

// Save stores rec under a new random handle.
func (s *RedisStore) Save(ctx context.Context, rec *Record) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode handoff: %w", err)
	}

	for range 3 {
		handle := uuid.NewString()
		key := config.CacheKey.HandoffKey(handle)

		box, err := s.seal.seal(payload, []byte(key))
		if err != nil {
			return "", err
		}

		ok, err := s.rdb.SetNX(ctx, key, box, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("save handoff: %w", err)
		}
		if ok {
			s.log.Debug().Str("export_id", rec.ExportID.String()).Dur("ttl", s.ttl).Msg("handoff saved")
			return handle, nil
		}
	}
	return "", errors.New("save handoff: could not allocate a unique handle")
}

// Load returns the record under handle and removes it.
func (s *RedisStore) Load(ctx context.Context, handle string) (*Record, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return nil, ErrNotFound
	}
	key := config.CacheKey.HandoffKey(handle)

	box, err := s.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load handoff: %w", err)
	}

	payload, err := s.seal.open(box, []byte(key))
	if err != nil {
		s.log.Warn().Str("handle", handle).Msg("discarding handoff record that failed authentication")
		return nil, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode handoff: %w", err)
	}
	return &rec, nil
}
