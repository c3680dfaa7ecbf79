package main

import (
	"fmt"
	"os"

	"docchat-backend/internal/document_parsing"

	"github.com/spf13/cobra"
)

func runExtract(cmd *cobra.Command, args []string) error {
	contents, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("error reading %s: %w", args[0], err)
	}

	text, err := document_parsing.PDFToText(contents)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
