// Package store persists the per-user active request so the gateway can
// restore lifecycle state after a restart instead of orphaning requests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"astroconnect/internal/models"

	"github.com/redis/go-redis/v9"
)

const activeRequestKeyPrefix = "request:active:"

// ErrNotFound is returned when a user has no persisted active request.
var ErrNotFound = errors.New("no active request found")

// RequestStore keeps the single active request per user in Redis. Entries
// expire on their own so an abandoned request can never pin a user forever.
type RequestStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRequestStore(client *redis.Client, ttl time.Duration) *RequestStore {
	return &RequestStore{client: client, ttl: ttl}
}

func activeRequestKey(userID string) string {
	return activeRequestKeyPrefix + userID
}

// SaveActive writes the user's current request, refreshing the TTL.
func (s *RequestStore) SaveActive(ctx context.Context, request *models.ConnectionRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := s.client.Set(ctx, activeRequestKey(request.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist request: %w", err)
	}
	return nil
}

// LoadActive returns the user's persisted request, or ErrNotFound.
func (s *RequestStore) LoadActive(ctx context.Context, userID string) (*models.ConnectionRequest, error) {
	data, err := s.client.Get(ctx, activeRequestKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	var request models.ConnectionRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &request, nil
}

// ClearActive removes the user's persisted request. Missing keys are fine.
func (s *RequestStore) ClearActive(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, activeRequestKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear request: %w", err)
	}
	return nil
}

// ListActive scans every persisted request. Used once at boot to resume
// status tracking for requests that were in flight when the process died.
func (s *RequestStore) ListActive(ctx context.Context) ([]*models.ConnectionRequest, error) {
	var requests []*models.ConnectionRequest
	iter := s.client.Scan(ctx, 0, activeRequestKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load request %s: %w", iter.Val(), err)
		}
		var request models.ConnectionRequest
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("failed to decode request %s: %w", iter.Val(), err)
		}
		requests = append(requests, &request)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan active requests: %w", err)
	}
	return requests, nil
}
