// Package workspace implements the global workspace (a bounded,
// TTL-governed pub/sub store of broadcast items) and the 7±2 slot
// working memory with lazy decay.
package workspace

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/types"
)

// Config bounds the workspace.
type Config struct {
	MaxItems        int
	ItemTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxItems:        1000,
		ItemTTL:         time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

type subscriber struct {
	id       string
	callback func(types.BroadcastItem)
	topics   []string
}

// GlobalWorkspace is a thread-safe id → BroadcastItem store with
// subscriber notification. A topic matches an item when the substring
// appears in its text or equals a contributor type name.
type GlobalWorkspace struct {
	config Config

	mu          sync.RWMutex
	items       map[string]types.BroadcastItem
	subscribers map[string]*subscriber
	lastCleanup time.Time

	now    func() time.Time
	logger *zap.Logger
}

// New creates a global workspace.
func New(config Config, logger *zap.Logger) *GlobalWorkspace {
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}
	if config.ItemTTL <= 0 {
		config.ItemTTL = time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GlobalWorkspace{
		config:      config,
		items:       make(map[string]types.BroadcastItem),
		subscribers: make(map[string]*subscriber),
		lastCleanup: time.Now(),
		now:         time.Now,
		logger:      logger.With(zap.String("component", "global_workspace")),
	}
}

// WithClock overrides the time source, for tests.
func (w *GlobalWorkspace) WithClock(now func() time.Time) *GlobalWorkspace {
	w.now = now
	return w
}

// Broadcast stores an item and notifies matching subscribers.
// Subscribers observe items in the order Broadcast returns to callers.
func (w *GlobalWorkspace) Broadcast(item types.BroadcastItem) {
	w.mu.Lock()
	w.items[item.ID] = item
	targets := w.matchSubscribersLocked(item)
	w.cleanupIfNeededLocked()
	w.mu.Unlock()

	// Callbacks run outside the lock; a failing callback must not abort
	// the others.
	for _, sub := range targets {
		func(s *subscriber) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("subscriber callback panicked",
						zap.String("subscriber", s.id), zap.Any("panic", r))
				}
			}()
			s.callback(item)
		}(sub)
	}
}

// Subscribe registers a callback with optional topic filters. With no
// topics the subscriber receives every broadcast.
func (w *GlobalWorkspace) Subscribe(id string, callback func(types.BroadcastItem), topics ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers[id] = &subscriber{id: id, callback: callback, topics: topics}
}

// Unsubscribe removes a subscriber.
func (w *GlobalWorkspace) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subscribers, id)
}

func (w *GlobalWorkspace) matchSubscribersLocked(item types.BroadcastItem) []*subscriber {
	textLower := strings.ToLower(item.Text)
	var matched []*subscriber
	for _, sub := range w.subscribers {
		if len(sub.topics) == 0 {
			matched = append(matched, sub)
			continue
		}
		for _, topic := range sub.topics {
			if topicMatches(topic, textLower, item.Contributors) {
				matched = append(matched, sub)
				break
			}
		}
	}
	return matched
}

func topicMatches(topic, textLower string, contributors []types.AgentType) bool {
	if strings.Contains(textLower, strings.ToLower(topic)) {
		return true
	}
	for _, c := range contributors {
		if string(c) == topic {
			return true
		}
	}
	return false
}

// Get returns an item by id.
func (w *GlobalWorkspace) Get(id string) (types.BroadcastItem, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	item, ok := w.items[id]
	return item, ok
}

// ItemsByAgent returns all items a given agent contributed to.
func (w *GlobalWorkspace) ItemsByAgent(agent types.AgentType) []types.BroadcastItem {
	return w.filter(func(item types.BroadcastItem) bool {
		return item.HasContributor(agent)
	})
}

// ItemsByMinConfidence returns items at or above a confidence threshold.
func (w *GlobalWorkspace) ItemsByMinConfidence(min float64) []types.BroadcastItem {
	return w.filter(func(item types.BroadcastItem) bool {
		return item.Confidence >= min
	})
}

// Recent returns items broadcast within the last N minutes.
func (w *GlobalWorkspace) Recent(minutes int) []types.BroadcastItem {
	cutoff := w.now().Add(-time.Duration(minutes) * time.Minute)
	return w.filter(func(item types.BroadcastItem) bool {
		return !item.CreatedAt.Before(cutoff)
	})
}

// Search performs case-insensitive substring search over item text,
// ordered by (confidence, created_at) descending.
func (w *GlobalWorkspace) Search(query string, maxResults int) []types.BroadcastItem {
	queryLower := strings.ToLower(query)
	matches := w.filter(func(item types.BroadcastItem) bool {
		return strings.Contains(strings.ToLower(item.Text), queryLower)
	})
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

func (w *GlobalWorkspace) filter(keep func(types.BroadcastItem) bool) []types.BroadcastItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []types.BroadcastItem
	for _, item := range w.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Size returns the current item count.
func (w *GlobalWorkspace) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

// Cleanup forces an immediate TTL + capacity sweep.
func (w *GlobalWorkspace) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastCleanup = time.Time{}
	w.cleanupIfNeededLocked()
}

// cleanupIfNeededLocked drops TTL-expired items first; if still over
// capacity, the oldest are dropped until within bounds. Runs at most
// every cleanup interval.
func (w *GlobalWorkspace) cleanupIfNeededLocked() {
	now := w.now()
	if now.Sub(w.lastCleanup) < w.config.CleanupInterval {
		return
	}
	w.lastCleanup = now

	cutoff := now.Add(-w.config.ItemTTL)
	for id, item := range w.items {
		if item.CreatedAt.Before(cutoff) {
			delete(w.items, id)
		}
	}

	if len(w.items) > w.config.MaxItems {
		ordered := make([]types.BroadcastItem, 0, len(w.items))
		for _, item := range w.items {
			ordered = append(ordered, item)
		}
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		})
		excess := len(w.items) - w.config.MaxItems
		for i := 0; i < excess; i++ {
			delete(w.items, ordered[i].ID)
		}
	}
}

// Stats reports workspace counters for observability.
func (w *GlobalWorkspace) Stats() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return map[string]any{
		"total_items":       len(w.items),
		"total_subscribers": len(w.subscribers),
		"max_items":         w.config.MaxItems,
		"item_ttl_seconds":  int(w.config.ItemTTL.Seconds()),
	}
}
