package workspace

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/types"
)

func item(id, text string, confidence float64, createdAt time.Time, contributors ...types.AgentType) types.BroadcastItem {
	if len(contributors) == 0 {
		contributors = []types.AgentType{types.AgentLogical}
	}
	return types.BroadcastItem{
		ID:           id,
		Text:         text,
		Contributors: contributors,
		Confidence:   confidence,
		CreatedAt:    createdAt,
	}
}

func TestBroadcastAndQueries(t *testing.T) {
	ws := New(DefaultConfig(), nil)
	now := time.Now()

	ws.Broadcast(item("a", "logical take on graphs", 0.9, now))
	ws.Broadcast(item("b", "creative take on graphs", 0.7, now, types.AgentCreative))
	ws.Broadcast(item("c", "other topic entirely", 0.5, now))

	got, ok := ws.Get("a")
	require.True(t, ok)
	assert.Equal(t, "logical take on graphs", got.Text)

	assert.Len(t, ws.ItemsByAgent(types.AgentCreative), 1)
	assert.Len(t, ws.ItemsByMinConfidence(0.6), 2)
	assert.Len(t, ws.Recent(10), 3)

	matches := ws.Search("graphs", 10)
	require.Len(t, matches, 2)
	// Ordered by confidence descending.
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
}

func TestSubscriberTopicsAndIsolation(t *testing.T) {
	ws := New(DefaultConfig(), nil)

	var all, topical []string
	ws.Subscribe("all", func(b types.BroadcastItem) { all = append(all, b.ID) })
	ws.Subscribe("topical", func(b types.BroadcastItem) { topical = append(topical, b.ID) }, "creative")
	ws.Subscribe("panicky", func(types.BroadcastItem) { panic("subscriber failure") })

	assert.NotPanics(t, func() {
		ws.Broadcast(item("x", "plain text", 0.5, time.Now()))
		ws.Broadcast(item("y", "wild idea", 0.5, time.Now(), types.AgentCreative))
	})

	assert.Equal(t, []string{"x", "y"}, all)
	// Topic matches the contributor type name.
	assert.Equal(t, []string{"y"}, topical)
}

func TestCleanupTTLBeforeCapacity(t *testing.T) {
	now := time.Now()
	clock := now
	ws := New(Config{MaxItems: 2, ItemTTL: time.Hour, CleanupInterval: time.Nanosecond}, nil).
		WithClock(func() time.Time { return clock })

	ws.Broadcast(item("expired", "old", 0.9, now.Add(-2*time.Hour)))
	ws.Broadcast(item("fresh1", "new", 0.9, now))
	ws.Broadcast(item("fresh2", "new", 0.9, now))
	ws.Broadcast(item("fresh3", "new", 0.9, now))
	ws.Cleanup()

	// TTL-expired items are gone, and capacity keeps the newest.
	_, ok := ws.Get("expired")
	assert.False(t, ok)
	assert.LessOrEqual(t, ws.Size(), 2)
}

func TestWorkingMemoryCapacityAndEviction(t *testing.T) {
	wm := NewWorkingMemory(WMConfig{MaxSlots: 3, DecayRate: 0.1})

	for i := 0; i < 5; i++ {
		priority := float64(i) / 10.0
		wm.Add(fmt.Sprintf("slot %d", i), []types.AgentType{types.AgentLogical}, priority, nil)
	}

	assert.Equal(t, 3, wm.Len())
	// Lowest-priority slots were evicted.
	contents := wm.Contents()
	assert.NotContains(t, contents, "slot 0")
	assert.NotContains(t, contents, "slot 1")
}

func TestWorkingMemoryDecayDropsSlots(t *testing.T) {
	now := time.Now()
	clock := now
	wm := NewWorkingMemory(WMConfig{MaxSlots: 7, DecayRate: 0.1}).
		WithClock(func() time.Time { return clock })

	wm.Add("fading thought", []types.AgentType{types.AgentLogical}, 0.5, nil)
	assert.Equal(t, 1, wm.Len())

	// After 5 minutes decay = 1 · (1 − 0.1·5) = 0.5: still alive.
	clock = clock.Add(5 * time.Minute)
	assert.Equal(t, 1, wm.Len())

	// After another 10 minutes the factor hits zero: dropped.
	clock = clock.Add(10 * time.Minute)
	assert.Equal(t, 0, wm.Len())
}

func TestWorkingMemoryPriorityAndRemove(t *testing.T) {
	wm := NewWorkingMemory(DefaultWMConfig())
	wm.Add("keep", []types.AgentType{types.AgentLogical}, 0.5, nil)
	wm.Add("drop", []types.AgentType{types.AgentCreative}, 0.5, nil)

	assert.True(t, wm.UpdatePriority("keep", 0.9))
	assert.False(t, wm.UpdatePriority("missing", 0.9))
	assert.True(t, wm.Remove("drop"))
	assert.Len(t, wm.ByAgent(types.AgentLogical), 1)
	assert.Empty(t, wm.ByAgent(types.AgentCreative))
}

func TestManagerBroadcastAndStore(t *testing.T) {
	m := NewManager(DefaultConfig(), DefaultWMConfig(), nil)

	b := item("id1", "shared insight", 0.8, time.Now())
	b.Speculative = true
	m.BroadcastAndStore(b, true)

	_, ok := m.Workspace.Get("id1")
	assert.True(t, ok)

	reps := m.WM.Representations(0.0)
	require.Len(t, reps, 1)
	assert.Equal(t, "shared insight", reps[0].Content)
	assert.Equal(t, 0.8, reps[0].Priority)
	assert.Equal(t, true, reps[0].Metadata["speculative"])

	view := m.View()
	assert.Contains(t, view, "global_workspace")
	assert.Contains(t, view, "working_memory")
}
