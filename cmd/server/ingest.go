package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
)

var (
	ingestDocumentID string
	ingestUserID     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf]",
	Short: "Extract, chunk and index a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocumentID, "document-id", "", "document id (generated when empty)")
	ingestCmd.Flags().StringVar(&ingestUserID, "user-id", "", "owner of the document")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file failed: %w", err)
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer app.Close()

	res, err := app.Ingest.Ingest(ctx, appsvc.IngestInput{
		DocumentID: ingestDocumentID,
		Name:       filepath.Base(args[0]),
		Data:       data,
		UserID:     ingestUserID,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
