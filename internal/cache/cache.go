// Package cache memoizes pipeline outcomes keyed by a normalized
// (profile, query) signature. The cache is advisory: any backend failure
// degrades to a miss and the pipeline runs in full.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

// Store is the backend key-value contract. Implementations must be safe
// for concurrent use; last-write-wins is acceptable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache wraps a Store with outcome serialization and TTL policy. The
// backend handle is injected; connection lifecycle belongs to the caller.
type Cache struct {
	store   Store
	ttl     time.Duration
	mu      sync.RWMutex
	version string
	bumps   int
}

// New creates a Cache. A nil store yields a cache that always misses.
func New(store Store, ttl time.Duration, version string) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if version == "" {
		version = "v1"
	}
	return &Cache{store: store, ttl: ttl, version: version}
}

// Version returns the active key version, including any bumps applied
// since startup.
func (c *Cache) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bumps == 0 {
		return c.version
	}
	return fmt.Sprintf("%s.%d", c.version, c.bumps)
}

// Bump rotates the key version so every existing entry becomes
// unreachable. Stale entries age out through the backend TTL; nothing is
// deleted eagerly. Returns the new version.
func (c *Cache) Bump() string {
	c.mu.Lock()
	c.bumps++
	bumps := c.bumps
	c.mu.Unlock()
	return fmt.Sprintf("%s.%d", c.version, bumps)
}

type cachedOutcome struct {
	Decision         domain.Decision `json:"decision"`
	FinalAnswer      string          `json:"final_answer"`
	Issues           []domain.Issue  `json:"issues,omitempty"`
	RevisionsApplied []string        `json:"revisions_applied,omitempty"`
	Confidence       float64         `json:"confidence"`
	RequiresHuman    bool            `json:"requires_human"`
	ProcessingTime   time.Duration   `json:"processing_ms"`
	StagesCompleted  []domain.Stage  `json:"stages_completed,omitempty"`
	StoredAt         time.Time       `json:"stored_at"`
}

// Get looks up a memoized outcome. The second return is false on miss,
// backend failure, or a corrupt entry; corrupt entries are deleted so the
// next run rewrites them.
func (c *Cache) Get(ctx context.Context, profile *domain.StudentProfile, query string) (*domain.VerificationOutcome, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	key := Key(c.Version(), profile, query)
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("cache: get failed, treating as miss: %v", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry cachedOutcome
	if err := json.Unmarshal(raw, &entry); err != nil || !entry.Decision.IsValid() || entry.FinalAnswer == "" {
		log.Printf("cache: corrupt entry at %s, deleting", key)
		if derr := c.store.Delete(ctx, key); derr != nil {
			log.Printf("cache: failed to delete corrupt entry: %v", derr)
		}
		return nil, false
	}

	storedAt := entry.StoredAt
	return &domain.VerificationOutcome{
		Decision:         entry.Decision,
		FinalAnswer:      entry.FinalAnswer,
		Issues:           entry.Issues,
		RevisionsApplied: entry.RevisionsApplied,
		Confidence:       entry.Confidence,
		RequiresHuman:    entry.RequiresHuman,
		ProcessingTime:   entry.ProcessingTime,
		StagesCompleted:  entry.StagesCompleted,
		CachedAt:         &storedAt,
	}, true
}

// Set memoizes an outcome, stripping cache metadata first. A write always
// replaces any existing entry. Failures are logged, never propagated.
func (c *Cache) Set(ctx context.Context, profile *domain.StudentProfile, query string, outcome *domain.VerificationOutcome) {
	if c == nil || c.store == nil || outcome == nil {
		return
	}
	if err := domain.ValidateVerificationOutcome(outcome); err != nil {
		log.Printf("cache: refusing to store invalid outcome: %v", err)
		return
	}

	entry := cachedOutcome{
		Decision:         outcome.Decision,
		FinalAnswer:      outcome.FinalAnswer,
		Issues:           outcome.Issues,
		RevisionsApplied: outcome.RevisionsApplied,
		Confidence:       outcome.Confidence,
		RequiresHuman:    outcome.RequiresHuman,
		ProcessingTime:   outcome.ProcessingTime,
		StagesCompleted:  outcome.StagesCompleted,
		StoredAt:         time.Now().UTC(),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Printf("cache: marshal failed: %v", err)
		return
	}

	key := Key(c.Version(), profile, query)
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		log.Printf("cache: set failed: %v", err)
	}
}
