// Package cache keeps per-table keyword rules in memory and refreshes them
// from a Source when they get older than the TTL.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"keyword_relay/internal/metrics"
	"keyword_relay/internal/rules"
)

const (
	DefaultTTL          = 60 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Source supplies the raw rows of a rule table, header row included.
type Source interface {
	FetchRows(ctx context.Context, tableID string) ([][]string, error)
}

// entry is the cached state of one table. rules is replaced wholesale on a
// successful refresh and never modified in place.
type entry struct {
	rules     []rules.Rule
	fetchedAt time.Time
	stale     bool
	lastErr   error
	failures  int
	skipped   int
}

// EntryInfo is a read-only view of a cache entry.
type EntryInfo struct {
	TableID   string        `json:"table_id"`
	Rules     int           `json:"rules"`
	Skipped   int           `json:"skipped_rows"`
	FetchedAt time.Time     `json:"fetched_at"`
	Age       time.Duration `json:"age"`
	Stale     bool          `json:"stale"`
	Failures  int           `json:"consecutive_failures"`
	LastError string        `json:"last_error,omitempty"`
}

// RuleCache caches parsed rules per table identifier.
type RuleCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group

	source       Source
	parser       rules.Parser
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a RuleCache.
type Option func(*RuleCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RuleCache) { c.ttl = ttl }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *RuleCache) { c.fetchTimeout = d }
}

// WithMode sets how rule keywords are normalized when a table is parsed.
func WithMode(mode rules.Mode) Option {
	return func(c *RuleCache) { c.parser.Mode = mode }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RuleCache) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *RuleCache) { c.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *RuleCache) { c.now = now }
}

func New(src Source, opts ...Option) *RuleCache {
	c := &RuleCache{
		entries:      make(map[string]*entry),
		source:       src,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the current rules for tableID, refreshing them first when
// the cached copy is missing or older than the TTL. It never fails: if the
// source cannot be read the last good rules are returned, or an empty slice
// when the table was never loaded. The returned slice must not be modified.
func (c *RuleCache) Rules(ctx context.Context, tableID string) []rules.Rule {
	if rs, ok := c.fresh(tableID); ok {
		c.metrics.CacheLookup("hit")
		return rs
	}

	v, _, _ := c.group.Do(tableID, func() (any, error) {
		// Another caller may have refreshed while we waited on the group
		if rs, ok := c.fresh(tableID); ok {
			return rs, nil
		}
		return c.refresh(ctx, tableID), nil
	})
	return v.([]rules.Rule)
}

// Warm loads every table up front so the first message does not pay for
// the fetch.
func (c *RuleCache) Warm(ctx context.Context, tableIDs ...string) {
	for _, id := range tableIDs {
		c.Rules(ctx, id)
	}
}

// Invalidate marks the table stale so the next lookup refreshes it. The
// rules stay in place and are still served if that refresh fails.
func (c *RuleCache) Invalidate(tableID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[tableID]
	if !ok {
		return false
	}
	e.stale = true
	return true
}

// InvalidateAll marks every table stale and returns how many there were.
func (c *RuleCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.stale = true
	}
	return len(c.entries)
}

// Snapshot describes every cached table, sorted by table id.
func (c *RuleCache) Snapshot() []EntryInfo {
	now := c.now()

	c.mu.RLock()
	infos := make([]EntryInfo, 0, len(c.entries))
	for id, e := range c.entries {
		info := EntryInfo{
			TableID:   id,
			Rules:     len(e.rules),
			Skipped:   e.skipped,
			FetchedAt: e.fetchedAt,
			Stale:     e.stale || c.expired(e, now),
			Failures:  e.failures,
		}
		if !e.fetchedAt.IsZero() {
			info.Age = now.Sub(e.fetchedAt)
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		infos = append(infos, info)
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].TableID < infos[j].TableID
	})
	return infos
}

func (c *RuleCache) fresh(tableID string) ([]rules.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[tableID]
	if !ok || e.stale || c.expired(e, c.now()) {
		return nil, false
	}
	return e.rules, true
}

func (c *RuleCache) expired(e *entry, now time.Time) bool {
	return e.fetchedAt.IsZero() || now.Sub(e.fetchedAt) > c.ttl
}

// refresh fetches and parses tableID. Only one refresh per table runs at a
// time, guarded by the singleflight group.
func (c *RuleCache) refresh(ctx context.Context, tableID string) []rules.Rule {
	// The fetch is shared by every caller waiting on this table, so it must
	// not die with the first caller's request.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	start := c.now()
	rows, err := c.source.FetchRows(fetchCtx, tableID)
	if err != nil {
		return c.refreshFailed(tableID, err)
	}

	parsed, skipped := c.parser.ParseRows(rows)
	for _, rowErr := range skipped {
		c.logger.Warn("Skipping rule row",
			slog.String("table", tableID),
			slog.Int("row", rowErr.Row),
			slog.Any("error", rowErr.Err))
	}

	c.mu.Lock()
	c.entries[tableID] = &entry{
		rules:     parsed,
		fetchedAt: c.now(),
		skipped:   len(skipped),
	}
	c.mu.Unlock()

	c.metrics.CacheLookup("refresh")
	c.metrics.RuleFetch(tableID, "ok")
	c.metrics.RulesLoaded(tableID, len(parsed))
	c.logger.Info("Loaded rules",
		slog.String("table", tableID),
		slog.Int("rules", len(parsed)),
		slog.Int("skipped", len(skipped)),
		slog.Duration("took", c.now().Sub(start)))

	return parsed
}

// refreshFailed keeps the previous rules and timestamp, so the next lookup
// retries while callers keep getting the last good rules.
func (c *RuleCache) refreshFailed(tableID string, err error) []rules.Rule {
	c.mu.Lock()
	e, ok := c.entries[tableID]
	if !ok {
		e = &entry{rules: []rules.Rule{}}
		c.entries[tableID] = e
	}
	e.lastErr = err
	e.failures++
	failures := e.failures
	rs := e.rules
	c.mu.Unlock()

	c.metrics.CacheLookup("stale")
	c.metrics.RuleFetch(tableID, "error")
	c.logger.Error("Failed to refresh rules, serving cached copy",
		slog.String("table", tableID),
		slog.Int("cached_rules", len(rs)),
		slog.Int("consecutive_failures", failures),
		slog.Any("error", err))

	return rs
}
