package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/openmined/docsync/internal/server/auth"
	"github.com/spf13/cobra"
)

type tokenOutput struct {
	Subject      string `json:"subject"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user>",
		Short: "Issue API tokens for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			svc := auth.NewAuthService(&cfg.Auth)
			if !svc.IsEnabled() {
				return fmt.Errorf("auth is disabled, clients identify with --user instead")
			}

			access, refresh, err := svc.IssueTokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(&tokenOutput{Subject: args[0], AccessToken: access, RefreshToken: refresh})
		},
	}
}
