package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pdfchat/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "pdfchat",
	Short:        "Chat with uploaded PDF documents",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: runServe,
}
