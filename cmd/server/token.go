package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"pdfchat/internal/pkg/jwtutil"
)

var (
	tokenUserID   string
	tokenUsername string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user id carried in the token")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "display name carried in the token")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUserID == "" {
		return errors.New("--user-id is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	exp := time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, exp, tokenUserID, tokenUsername)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
