package memory

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
)

// IntervalStore keeps repeat intervals in a go-cache instance that never expires.
type IntervalStore struct {
	cache *cache.Cache
}

var _ repository.IntervalStore = (*IntervalStore)(nil)

func NewIntervalStore() *IntervalStore {
	return &IntervalStore{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (s *IntervalStore) Save(_ context.Context, id string, interval model.RepeatInterval) error {
	if !interval.Valid() {
		return fmt.Errorf("unknown repeat interval %q", interval)
	}
	s.cache.Set(id, interval, cache.NoExpiration)
	return nil
}

func (s *IntervalStore) Get(_ context.Context, id string) (model.RepeatInterval, bool, error) {
	v, found := s.cache.Get(id)
	if !found {
		return "", false, nil
	}
	interval, ok := v.(model.RepeatInterval)
	if !ok {
		return "", false, fmt.Errorf("unexpected value type %T for %s", v, id)
	}
	return interval, true, nil
}

func (s *IntervalStore) Delete(_ context.Context, ids ...string) error {
	for _, id := range ids {
		s.cache.Delete(id)
	}
	return nil
}

func (s *IntervalStore) Clear(_ context.Context) error {
	s.cache.Flush()
	return nil
}
