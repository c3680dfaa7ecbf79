package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docchat-backend/pkg/api"
	"docchat-backend/pkg/client"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const connectTimeout = 10 * time.Second

func waitConnected(ctx context.Context, m *client.Manager) error {
	connected := make(chan struct{}, 1)
	unwatch := m.OnStatus(func(ok bool) {
		if ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unwatch()

	if m.Connected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return errors.New("timed out connecting to the chat server")
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	conversationId, err := parseConversationId(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rest := restClient()
	var attachments []api.Attachment
	for _, path := range files {
		attachment, err := rest.UploadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("error uploading %s: %w", path, err)
		}
		attachments = append(attachments, attachment)
	}

	if clientId == "" {
		clientId = uuid.NewString()
	}

	m := client.NewManager(client.SocketURL(serverURL, clientId), client.ManagerOptions{})
	release := m.Acquire()
	defer release()

	if err := waitConnected(ctx, m); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, err = client.SendChat(ctx, m, conversationId, args[1], attachments, func(event api.Event) {
		switch event.Type {
		case api.EventTitleUpdated:
			var data api.TitleUpdatedData
			if event.Decode(&data) == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "title: %s\n", data.Title)
			}
		case api.EventStreamChunk:
			var data api.StreamChunkData
			if event.Decode(&data) == nil {
				fmt.Fprint(out, data.Content)
			}
		}
	})
	fmt.Fprintln(out)
	return err
}
