package main

import (
	"fmt"
	"io"

	"github.com/openmined/docsync/internal/docsdk"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <refresh-token>",
		Short: "Exchange a refresh token for a new token pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			// the identity may have expired, so only the server url is needed
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			tokens, err := docsdk.RefreshTokens(cmd.Context(), cfg.BaseURL, args[0])
			if err != nil {
				return err
			}
			return p.print(tokens, func(w io.Writer) {
				fmt.Fprintf(w, "access token:  %s\n", tokens.AccessToken)
				fmt.Fprintf(w, "refresh token: %s\n", tokens.RefreshToken)
			})
		},
	}
}
