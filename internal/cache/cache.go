package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// Entry is what a cache hit restores: the final text plus enough metadata to
// rebuild the response envelope without re-classifying.
type Entry struct {
	Text     string         `json:"text"`
	Category types.Category `json:"category"`
	Tier     string         `json:"tier,omitempty"`
	StoredAt time.Time      `json:"stored_at"`
}

// Cache stores synthesized answers in Redis keyed by the normalized query
// text alone, so a hit can be served before any model is consulted. Only
// read-only categories are stored; mutations and fast-path answers never
// enter the cache.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	prefix   string
	disabled bool
	logger   *logrus.Logger
}

// New creates a cache. A zero ttl disables expiry on stored entries.
func New(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		prefix: "flowpilot:cache:",
		logger: logger,
	}
}

// NewDisabled creates a cache that never stores and never hits, for
// deployments that want every answer fresh.
func NewDisabled() *Cache {
	return &Cache{disabled: true}
}

// Get returns the stored entry for a query, or nil on a miss. Redis being
// down is reported as a miss: the pipeline must keep answering without the
// cache.
func (c *Cache) Get(ctx context.Context, query string) *Entry {
	if c.disabled {
		return nil
	}

	raw, err := c.client.Get(ctx, c.key(query)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.logger.WithError(err).Warn("Cache read failed, treating as miss")
		return nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.WithError(err).Warn("Cache entry corrupt, treating as miss")
		return nil
	}
	return &entry
}

// Put stores an entry under the query. Entries whose category is not
// cacheable are silently skipped; storage errors are logged and swallowed.
func (c *Cache) Put(ctx context.Context, query string, entry Entry) {
	if c.disabled || !entry.Category.Cacheable() {
		return
	}

	entry.StoredAt = time.Now()

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).Error("Cache entry not serializable")
		return
	}

	if err := c.client.Set(ctx, c.key(query), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Cache write failed")
	}
}

// Invalidate drops every cached answer. Called after a mutation such as
// activating a process, since stored status answers may now be stale.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.disabled {
		return
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WithError(err).Warn("Cache invalidation delete failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("Cache invalidation scan failed")
	}
}

func (c *Cache) key(query string) string {
	return fmt.Sprintf("%s%s", c.prefix, NormalizeQuery(query))
}

// fillerWords are dropped from cache keys so trivial phrasing differences
// ("per favore", "please") still hit the same entry.
var fillerWords = map[string]struct{}{
	"per": {}, "favore": {}, "cortesia": {}, "grazie": {},
	"please": {}, "thanks": {}, "kindly": {},
	"un": {}, "una": {}, "il": {}, "lo": {}, "la": {}, "i": {}, "gli": {}, "le": {},
	"a": {}, "an": {}, "the": {},
}

// NormalizeQuery lower-cases, strips punctuation and drops filler words, so
// equivalent phrasings share one cache slot.
func NormalizeQuery(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))

	var b strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if _, filler := fillerWords[w]; !filler {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
