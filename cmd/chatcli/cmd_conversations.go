package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"docchat-backend/pkg/client"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func restClient() *client.RESTClient {
	return client.NewRESTClient(serverURL)
}

func parseConversationId(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid conversation id %q: %w", arg, err)
	}
	return id, nil
}

func runList(cmd *cobra.Command, args []string) error {
	conversations, err := restClient().ListConversations(cmd.Context(), limit, offset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, c := range conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Id, c.Title, c.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runNew(cmd *cobra.Command, args []string) error {
	title := ""
	if len(args) == 1 {
		title = args[0]
	}

	conversation, err := restClient().CreateConversation(cmd.Context(), title)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", conversation.Id, conversation.Title)
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	id, err := parseConversationId(args[0])
	if err != nil {
		return err
	}

	conversation, err := restClient().RenameConversation(cmd.Context(), id, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", conversation.Id, conversation.Title)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseConversationId(args[0])
	if err != nil {
		return err
	}

	if err := restClient().DeleteConversation(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	id, err := parseConversationId(args[0])
	if err != nil {
		return err
	}

	messages, err := restClient().GetMessages(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range messages {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.CreatedAt.Local().Format(time.DateTime))
		for _, a := range m.Attachments {
			fmt.Fprintf(out, "  (%s) %s\n", a.Type, a.Name)
		}
		if content := strings.TrimSpace(m.Content); content != "" {
			fmt.Fprintln(out, content)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	attachment, err := restClient().UploadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(attachment)
}
