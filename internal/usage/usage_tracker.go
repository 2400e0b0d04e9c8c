// Package usage accumulates token and cost accounting for the agent queries
// made during one run. Nothing is persisted; the CLI reports the totals on
// stderr when the run ends.
package usage

import (
	"context"
	"sync"
)

type contextKey struct{}

// Tracker records usage events. A nil *Tracker ignores everything, so
// backends can record unconditionally.
type Tracker struct {
	mu    sync.Mutex
	stats Stats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: Stats{ByModel: make(map[string]TokenCounts)}}
}

// Track records one finished query.
func (t *Tracker) Track(e Event) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Queries++
	t.stats.Turns += e.Turns
	t.stats.Total.Add(e.InputTokens, e.OutputTokens, e.CostUSD)
	t.stats.Provider = e.Provider

	entry := t.stats.ByModel[e.Model]
	entry.Add(e.InputTokens, e.OutputTokens, e.CostUSD)
	t.stats.ByModel[e.Model] = entry
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() Stats {
	if t == nil {
		return Stats{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.stats
	stats.ByModel = make(map[string]TokenCounts, len(t.stats.ByModel))
	for k, v := range t.stats.ByModel {
		stats.ByModel[k] = v
	}
	return stats
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
