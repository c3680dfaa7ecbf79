package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docchat-backend/pkg/api"

	"github.com/google/uuid"
)

var ErrNotConnected = errors.New("socket is not connected")

// TurnError is an error event received while waiting for a response.
type TurnError struct {
	Message string
}

func (e *TurnError) Error() string {
	return e.Message
}

// SendChat sends one chat request over the manager's socket and waits for the
// response to finish. onEvent, if set, sees every event of the turn in order.
// The manager must already be acquired and connected.
func SendChat(ctx context.Context, m *Manager, conversationId uuid.UUID, content string, attachments []api.Attachment, onEvent func(api.Event)) (api.StreamEndData, error) {
	done := make(chan struct{})
	var once sync.Once
	var end api.StreamEndData
	var turnErr error

	finish := func(data api.StreamEndData, err error) {
		once.Do(func() {
			end, turnErr = data, err
			close(done)
		})
	}

	unsubscribe := m.Subscribe(func(event api.Event) {
		select {
		case <-done:
			return
		default:
		}

		if onEvent != nil && event.Type != api.EventPong {
			onEvent(event)
		}

		switch event.Type {
		case api.EventStreamEnd:
			var data api.StreamEndData
			if err := event.Decode(&data); err != nil {
				finish(data, fmt.Errorf("error decoding stream_end: %w", err))
				return
			}
			finish(data, nil)
		case api.EventError:
			var data api.ErrorData
			if err := event.Decode(&data); err != nil {
				finish(api.StreamEndData{}, fmt.Errorf("error decoding error event: %w", err))
				return
			}
			finish(api.StreamEndData{}, &TurnError{Message: data.Message})
		}
	})
	defer unsubscribe()

	// A dropped socket loses the in-flight response.
	unwatch := m.OnStatus(func(connected bool) {
		if !connected {
			finish(api.StreamEndData{}, ErrNotConnected)
		}
	})
	defer unwatch()

	if !m.Send(api.NewChatRequest(conversationId, content, attachments)) {
		return api.StreamEndData{}, ErrNotConnected
	}

	select {
	case <-done:
		return end, turnErr
	case <-ctx.Done():
		return api.StreamEndData{}, ctx.Err()
	}
}
