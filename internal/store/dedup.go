package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	guardExpectedItems = 100_000
	guardFalsePositive = 0.01
	guardLRUSize       = 4096
)

// historyGuard is a two-tier in-memory filter in front of the listening
// history table. The bloom filter answers "definitely new" cheaply; the LRU
// confirms "definitely seen". Anything in between falls through to the
// INSERT OR IGNORE, whose unique constraint is authoritative.
type historyGuard struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	recent *lru.Cache[string, struct{}]
}

func newHistoryGuard() *historyGuard {
	recent, err := lru.New[string, struct{}](guardLRUSize)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &historyGuard{
		filter: bloom.NewWithEstimates(guardExpectedItems, guardFalsePositive),
		recent: recent,
	}
}

// seen reports whether key was definitely remembered before. A bloom miss is
// conclusive; a bloom hit needs LRU confirmation to rule out false positives.
func (g *historyGuard) seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.filter.TestString(key) {
		return false
	}
	_, ok := g.recent.Get(key)
	return ok
}

func (g *historyGuard) remember(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.filter.AddString(key)
	g.recent.Add(key, struct{}{})
}
