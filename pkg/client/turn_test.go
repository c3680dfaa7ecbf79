package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"docchat-backend/pkg/api"
	"docchat-backend/pkg/client"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (c *fakeConn) chatRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.written {
		if req, ok := v.(api.SocketRequest); ok && req.Type == api.RequestChat {
			n++
		}
	}
	return n
}

func connectedManager(t *testing.T) (*client.Manager, *fakeConn) {
	t.Helper()
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	release := m.Acquire()
	t.Cleanup(release)
	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	return m, dialer.conn(0)
}

type turnResult struct {
	end api.StreamEndData
	err error
}

func startTurn(m *client.Manager, onEvent func(api.Event)) <-chan turnResult {
	results := make(chan turnResult, 1)
	go func() {
		end, err := client.SendChat(context.Background(), m, uuid.New(), "hello", nil, onEvent)
		results <- turnResult{end: end, err: err}
	}()
	return results
}

func TestSendChat(t *testing.T) {
	m, conn := connectedManager(t)

	var mu sync.Mutex
	var seen []string
	results := startTurn(m, func(event api.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
	})

	require.Eventually(t, func() bool { return conn.chatRequests() == 1 }, time.Second, 5*time.Millisecond)

	id := uuid.New()
	conn.inbound <- api.MustEvent(api.EventStreamStart, nil)
	conn.inbound <- api.MustEvent(api.EventPong, nil)
	conn.inbound <- api.MustEvent(api.EventStreamChunk, api.StreamChunkData{Content: "hi"})
	conn.inbound <- api.MustEvent(api.EventStreamEnd, api.StreamEndData{Id: id, Content: "hi"})

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, api.StreamEndData{Id: id, Content: "hi"}, res.end)
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{api.EventStreamStart, api.EventStreamChunk, api.EventStreamEnd}, seen)
}

func TestSendChatErrorEvent(t *testing.T) {
	m, conn := connectedManager(t)

	results := startTurn(m, nil)
	require.Eventually(t, func() bool { return conn.chatRequests() == 1 }, time.Second, 5*time.Millisecond)

	conn.inbound <- api.MustEvent(api.EventError, api.ErrorData{Message: "Conversation not found"})

	select {
	case res := <-results:
		var turnErr *client.TurnError
		require.ErrorAs(t, res.err, &turnErr)
		assert.Equal(t, "Conversation not found", turnErr.Message)
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}
}

func TestSendChatDisconnect(t *testing.T) {
	m, conn := connectedManager(t)

	results := startTurn(m, nil)
	require.Eventually(t, func() bool { return conn.chatRequests() == 1 }, time.Second, 5*time.Millisecond)

	close(conn.inbound)

	select {
	case res := <-results:
		assert.ErrorIs(t, res.err, client.ErrNotConnected)
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}
}

func TestSendChatNotConnected(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	_, err := client.SendChat(context.Background(), m, uuid.New(), "hello", nil, nil)
	assert.ErrorIs(t, err, client.ErrNotConnected)
}
