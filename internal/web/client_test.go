package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCoalescesNodeUpdates(t *testing.T) {
	c := NewClient(NewHub(), nil, nil)

	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeNodeCreated, NodeID: "a"}))
	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeNodeUpdated, NodeID: "a", Error: "v1"}))
	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeEdgeAdded, NodeID: "b"}))
	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeNodeUpdated, NodeID: "a", Error: "v2"}))
	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeNodeUpdated, NodeID: "b"}))

	got := c.take()
	require.Len(t, got, 4)
	assert.Equal(t, MessageTypeNodeCreated, got[0].Type)
	assert.Equal(t, "v2", got[1].Error)
	assert.Equal(t, MessageTypeEdgeAdded, got[2].Type)
	assert.Equal(t, "b", got[3].NodeID)

	// after a drain, updates queue again
	require.True(t, c.enqueue(&WebMessage{Type: MessageTypeNodeUpdated, NodeID: "a", Error: "v3"}))
	require.Len(t, c.take(), 1)
}

func TestClientStalls(t *testing.T) {
	c := NewClient(NewHub(), nil, nil)
	for i := 0; i < maxPending; i++ {
		require.True(t, c.enqueue(&WebMessage{Type: MessageTypeState}))
	}
	assert.False(t, c.enqueue(&WebMessage{Type: MessageTypeState}))

	c.take()
	c.close()
	c.close()
	assert.False(t, c.enqueue(&WebMessage{Type: MessageTypeState}))
}

func TestHubDropsStalledClient(t *testing.T) {
	h := NewHub()
	c := NewClient(h, nil, nil)
	h.Register(c)
	require.Equal(t, 1, h.ClientCount())

	for i := 0; i <= maxPending; i++ {
		h.deliver(&WebMessage{Type: MessageTypeState})
	}
	assert.Equal(t, 0, h.ClientCount())

	h.Stop()
	late := NewClient(h, nil, nil)
	h.Register(late)
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, late.enqueue(&WebMessage{Type: MessageTypeState}))
}
