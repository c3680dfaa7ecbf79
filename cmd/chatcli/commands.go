package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	clientId  string
	limit     int
	offset    int
	files     []string

	rootCmd = &cobra.Command{
		Use:          "chatcli",
		Short:        "Chat with your documents from the terminal",
		SilenceUsage: true,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently active first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	newCmd = &cobra.Command{
		Use:   "new [title]",
		Short: "Start a new conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runNew,
	}
	renameCmd = &cobra.Command{
		Use:   "rename <conversation-id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
	deleteCmd = &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation with its messages and files",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	historyCmd = &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	uploadCmd = &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image or PDF and print its attachment reference",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}
	extractCmd = &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Print the text the server extracts from a PDF for text-only models",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	sendCmd = &cobra.Command{
		Use:   "send <conversation-id> <message>",
		Short: "Send a message and stream the response",
		Args:  cobra.ExactArgs(2),
		RunE:  runSend,
	}
)

func defaultServerURL() string {
	if url := os.Getenv("DOCCHAT_SERVER"); url != "" {
		return url
	}
	return "http://localhost:8000"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "base URL of the chat server")

	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of conversations (server default when 0)")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of conversations to skip")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(extractCmd)

	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "image or PDF to attach (repeatable)")
	sendCmd.Flags().StringVar(&clientId, "client-id", "", "socket client id (random when empty)")
}
