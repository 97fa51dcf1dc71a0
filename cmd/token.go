package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/readsession-backend/internal/app"
	"github.com/yungbote/readsession-backend/internal/services"
)

// tokenCmd mints a bearer token for local testing. Tokens are normally
// issued by the identity service that shares JWT_SECRET_KEY.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawUser, _ := cmd.Flags().GetString("user")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		userID := uuid.New()
		if rawUser != "" {
			id, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			userID = id
		}

		log, err := app.NewLogger()
		if err != nil {
			return err
		}
		defer log.Sync()
		cfg := app.LoadConfig(log)

		auth, err := services.NewAuthService(log, services.AuthConfig{
			JWTSecretKey: cfg.JWTSecretKey,
			Issuer:       cfg.JWTIssuer,
			Leeway:       cfg.JWTLeeway,
		})
		if err != nil {
			return err
		}
		token, err := auth.IssueToken(userID, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s\n%s\n", userID, token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "User id to embed (random when empty)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
