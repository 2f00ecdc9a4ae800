package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeEnvelope(t *testing.T) {
	raw := Make("req-1", TypeEmailSent, map[string]any{"to": "alice@x.com"})

	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, TypeEmailSent, e.Type)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, "req-1", e.RequestID)
	assert.False(t, e.At.IsZero())
	assert.JSONEq(t, `{"to":"alice@x.com"}`, string(e.Data))
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish("one")
	assert.Equal(t, "one", <-a)
	assert.Equal(t, "one", <-b)

	h.Unsubscribe(b)
	h.Publish("two")
	assert.Equal(t, "two", <-a)
	_, open := <-b
	assert.False(t, open)
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < 20; i++ {
		h.Publish("evt")
	}
	// Buffer is 10; the rest were dropped, nothing blocked.
	assert.Len(t, ch, 10)
}

func TestNilHubPublishIsSafe(t *testing.T) {
	var h *Hub
	h.Publish("evt")
}
