package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the remote account linked to your user",
	}
	cmd.AddCommand(newRemoteUserCmd())
	cmd.AddCommand(newRemoteAuthorizeCmd())
	cmd.AddCommand(newRemoteCompleteCmd())
	cmd.AddCommand(newRemoteProfileCmd())
	cmd.AddCommand(newRemoteDelinkCmd())
	return cmd
}

func profileText(profile *docsdk.Profile) func(w io.Writer) {
	return func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "User\t%s\n", profile.User)
		fmt.Fprintf(tw, "Name\t%s\n", profile.DisplayName)
		if profile.Email != "" {
			fmt.Fprintf(tw, "Email\t%s\n", profile.Email)
		}
		quota := "unlimited"
		if profile.QuotaBytes > 0 {
			quota = humanize.Bytes(uint64(profile.QuotaBytes))
		}
		fmt.Fprintf(tw, "Usage\t%s of %s\n", humanize.Bytes(uint64(profile.UsedBytes)), quota)
		tw.Flush()
	}
}

func newRemoteUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Show whether a remote account is linked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			user, err := sdk.Remote.User(cmd.Context())
			if err != nil {
				return err
			}
			return p.print(user, func(w io.Writer) {
				if !user.Linked {
					fmt.Fprintln(w, red.Render("not linked"))
					return
				}
				fmt.Fprintln(w, green.Render("linked"))
				if user.Profile != nil {
					profileText(user.Profile)(w)
				}
			})
		},
	}
}

func newRemoteAuthorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Start linking a remote account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			callback, _ := cmd.Flags().GetString("callback")
			resp, err := sdk.Remote.Authorize(cmd.Context(), callback)
			if err != nil {
				return err
			}
			return p.print(resp, func(w io.Writer) {
				fmt.Fprintln(w, "Open this URL to approve access:")
				fmt.Fprintln(w, cyan.Render(resp.URL))
				fmt.Fprintln(w, gray.Render("then run: docsync remote complete <verifier>"))
			})
		},
	}
	cmd.Flags().String("callback", "", "URL the remote redirects to after approval")
	return cmd
}

func newRemoteCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <verifier>",
		Short: "Finish linking a remote account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := sdk.Remote.Complete(cmd.Context(), args[0]); err != nil {
				return err
			}
			p.done("remote account linked")
			return nil
		},
	}
}

func newRemoteProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the linked remote account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			profile, err := sdk.Remote.Profile(cmd.Context())
			if err != nil {
				return err
			}
			return p.print(profile, profileText(profile))
		},
	}
}

func newRemoteDelinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delink",
		Short: "Forget the remote account and all of its links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			removed, err := sdk.Remote.Delink(cmd.Context())
			if err != nil {
				return err
			}
			return p.print(map[string]int{"removed": removed}, func(w io.Writer) {
				p.done("remote account removed, %d link(s) dropped", removed)
			})
		},
	}
}
