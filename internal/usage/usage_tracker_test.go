package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Aggregates(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(Event{Provider: "claude-cli", Model: "sonnet", InputTokens: 10, OutputTokens: 5, CostUSD: 0.01, Turns: 3})
	tracker.Track(Event{Provider: "claude-cli", Model: "sonnet", InputTokens: 2, OutputTokens: 3, Turns: 1})

	stats := tracker.Stats()
	assert.Equal(t, 2, stats.Queries)
	assert.Equal(t, 4, stats.Turns)
	assert.Equal(t, TokenCounts{Input: 12, Output: 8, Total: 20, Cost: 0.01}, stats.Total)
	assert.Equal(t, int64(20), stats.ByModel["sonnet"].Total)
	assert.Equal(t, "claude-cli", stats.Provider)
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(Event{Model: "m", InputTokens: 1})

	stats := tracker.Stats()
	stats.ByModel["m"] = TokenCounts{}

	assert.Equal(t, int64(1), tracker.Stats().ByModel["m"].Input)
}

func TestTracker_NilIsInert(t *testing.T) {
	var tracker *Tracker
	tracker.Track(Event{InputTokens: 5})
	assert.Equal(t, 0, tracker.Stats().Queries)
}

func TestTracker_ContextHelpers(t *testing.T) {
	tracker := NewTracker()

	ctx := NewContext(context.Background(), tracker)
	assert.Same(t, tracker, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
