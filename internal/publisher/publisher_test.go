package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelwatch/cola-sync/internal/cola"
)

func TestMemoryPublisher(t *testing.T) {
	m := NewMemory()

	id, err := m.Publish(context.Background(), Event{RunID: "run-1", Strategy: "incremental"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "incremental", events[0].Strategy)
}

func TestEventJSONShape(t *testing.T) {
	event := Event{
		RunID:      "run-1",
		Strategy:   "full",
		Stats:      cola.SyncStats{Total: 10, Created: 2, Updated: 3, Skipped: 5},
		StartedAt:  time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, time.March, 12, 10, 5, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "full", decoded["strategy"])
	assert.NotContains(t, decoded, "error", "empty error is omitted")

	stats, ok := decoded["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, stats["created"])
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	id, err := p.Publish(context.Background(), Event{RunID: "run-1"})
	require.NoError(t, err)
	assert.Empty(t, id)
	require.NoError(t, p.Close())
}
