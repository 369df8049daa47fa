package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/teamchat-backend/internal/services/auth"
)

func tokenCmd() *cobra.Command {
	var userID, accountID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Issuing never consults the directory.
			provider, err := auth.NewJWTProvider(log, nil, cfg.JWTSecretKey, cfg.AccessTokenTTL)
			if err != nil {
				return err
			}
			tok, err := provider.IssueToken(userID, accountID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().Int64Var(&accountID, "account", 0, "account id to pin the token to (0 = any)")
	return cmd
}
