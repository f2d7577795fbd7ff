package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishQueuesEnvelope(t *testing.T) {
	h := NewHub(nil)

	h.Publish("document_created", map[string]string{"documentNumber": "IN-1"})

	select {
	case msg := <-h.Broadcast:
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "ledger_update", got["type"])
		assert.Equal(t, "document_created", got["action"])
		assert.Equal(t, map[string]interface{}{"documentNumber": "IN-1"}, got["data"])
	default:
		t.Fatal("expected a queued message")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(h.Broadcast)+10; i++ {
			h.Publish("document_created", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Len(t, h.Broadcast, cap(h.Broadcast))
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	h.Publish("document_deleted", nil)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHub_JoinAndLeaveReturnAfterRunStops(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	finished := make(chan bool)
	go func() {
		joined := h.join(nil)
		h.leave(nil)
		finished <- joined
	}()

	select {
	case joined := <-finished:
		assert.False(t, joined)
	case <-time.After(time.Second):
		t.Fatal("join or leave blocked on a stopped hub")
	}
}
