package dedup

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dvmnet/go-dvm/models"
)

// Store is a bounded seen-event-id set shared by all subscriptions in the
// process. Old ids age out via LRU eviction rather than explicit expiry.
type Store struct {
	seen *lru.Cache[string, struct{}]
}

func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = models.DefaultDedupCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Store{seen}, nil
}

// RecordIfNew returns true exactly once per id within the cache's lifetime.
func (s *Store) RecordIfNew(id string) bool {
	previouslySeen, _ := s.seen.ContainsOrAdd(id, struct{}{})
	return !previouslySeen
}
