package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
	"pdfchat/internal/model"
)

var (
	askDocumentID string
	askModel      string
	askVerbose    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question against the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDocumentID, "document-id", "", "restrict retrieval to one document")
	askCmd.Flags().StringVar(&askModel, "model", "", "model slug (defaults to the configured model)")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print turn state changes")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewStandalone(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer app.Close()

	turn, err := app.Chat.StreamTurn(ctx, appsvc.TurnInput{
		UserID:     "cli",
		ModelSlug:  askModel,
		DocumentID: askDocumentID,
		Messages:   []appsvc.ChatMessage{{Role: string(model.RoleUser), Content: args[0]}},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var turnErr error
	for ev := range turn.Events {
		switch ev.Type {
		case appsvc.EventStatus:
			if askVerbose {
				cmd.PrintErrf("[%s]\n", ev.State)
			}
		case appsvc.EventDelta:
			fmt.Fprint(out, ev.Delta)
		case appsvc.EventDone:
			fmt.Fprintln(out)
		case appsvc.EventError:
			turnErr = errors.New(ev.Error)
		}
	}
	return turnErr
}
