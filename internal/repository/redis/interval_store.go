package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
)

// DefaultKey is the hash holding identifier -> interval.
const DefaultKey = "localnotify:intervals"

// IntervalStore keeps repeat intervals in a single Redis hash so they
// survive restarts alongside a persistent backend.
type IntervalStore struct {
	client redis.UniversalClient
	key    string
}

var _ repository.IntervalStore = (*IntervalStore)(nil)

func NewIntervalStore(client redis.UniversalClient, key string) *IntervalStore {
	if key == "" {
		key = DefaultKey
	}
	return &IntervalStore{client: client, key: key}
}

func (s *IntervalStore) Save(ctx context.Context, id string, interval model.RepeatInterval) error {
	if !interval.Valid() {
		return fmt.Errorf("unknown repeat interval %q", interval)
	}
	if err := s.client.HSet(ctx, s.key, id, string(interval)).Err(); err != nil {
		return fmt.Errorf("failed to save interval for %s: %w", id, err)
	}
	return nil
}

// Get treats a stored value this build does not know as absent.
func (s *IntervalStore) Get(ctx context.Context, id string) (model.RepeatInterval, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get interval for %s: %w", id, err)
	}
	interval, err := model.ParseRepeatInterval(raw)
	if err != nil {
		return "", false, nil
	}
	return interval, true, nil
}

func (s *IntervalStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key, ids...).Err(); err != nil {
		return fmt.Errorf("failed to delete intervals: %w", err)
	}
	return nil
}

func (s *IntervalStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear intervals: %w", err)
	}
	return nil
}
