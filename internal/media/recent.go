package media

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	defaultRecentTTL           = 5 * time.Minute
	defaultRecentMaxEntries    = 64
	defaultSimilarityThreshold = 0.6
)

// Claim is one scene's hold on an asset. A near-duplicate query that reuses
// the asset stacks its claim on top of the one it displaced.
type Claim struct {
	key   string
	query string
	at    time.Time
	prev  *Claim
}

// RecentlyUsed is a job-scoped set of selected assets. An asset already
// used by one scene may only be picked again by a scene whose query is a
// near-duplicate, so dissimilar scenes get distinct clips without starving
// scenes that ask for the same thing.
type RecentlyUsed struct {
	mu        sync.Mutex
	entries   map[string]*Claim
	ttl       time.Duration
	maxSize   int
	threshold float64
	now       func() time.Time
}

func NewRecentlyUsed(ttl time.Duration, maxSize int, threshold float64) *RecentlyUsed {
	if ttl <= 0 {
		ttl = defaultRecentTTL
	}
	if maxSize <= 0 {
		maxSize = defaultRecentMaxEntries
	}
	return &RecentlyUsed{
		entries:   make(map[string]*Claim),
		ttl:       ttl,
		maxSize:   maxSize,
		threshold: threshold,
		now:       time.Now,
	}
}

// TryReserve claims key for query. It fails when the key was recently used
// for a dissimilar query.
func (r *RecentlyUsed) TryReserve(key, query string) (*Claim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictExpired(now)

	held, ok := r.entries[key]
	if ok && Similarity(held.query, query) < r.threshold {
		return nil, false
	}
	if !ok && len(r.entries) >= r.maxSize {
		r.evictOldest()
	}
	c := &Claim{key: key, query: query, at: now, prev: held}
	r.entries[key] = c
	return c, true
}

// Unreserve withdraws a claim whose candidate failed validation. Claims it
// displaced are restored, so an earlier scene keeps its hold on the asset.
func (r *RecentlyUsed) Unreserve(c *Claim) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	head, ok := r.entries[c.key]
	if !ok {
		return
	}
	if head == c {
		if c.prev == nil {
			delete(r.entries, c.key)
		} else {
			r.entries[c.key] = c.prev
		}
		return
	}
	for e := head; e.prev != nil; e = e.prev {
		if e.prev == c {
			e.prev = c.prev
			return
		}
	}
}

func (r *RecentlyUsed) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *RecentlyUsed) evictExpired(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.at) > r.ttl {
			delete(r.entries, k)
		}
	}
}

func (r *RecentlyUsed) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range r.entries {
		if oldestKey == "" || e.at.Before(oldest) {
			oldestKey, oldest = k, e.at
		}
	}
	delete(r.entries, oldestKey)
}

// Similarity is the Jaccard overlap of the lowercase word sets of a and b.
func Similarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
