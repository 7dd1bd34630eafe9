package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/spf13/cobra"
)

// resolveRefs accepts node refs or repository paths starting with "/"
func resolveRefs(ctx context.Context, sdk *docsdk.DocSync, args []string) ([]string, error) {
	refs := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.HasPrefix(arg, "/") {
			refs = append(refs, arg)
			continue
		}
		node, err := sdk.Repo.Resolve(ctx, arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, node.Ref)
	}
	return refs, nil
}

func resolveRef(ctx context.Context, sdk *docsdk.DocSync, arg string) (string, error) {
	refs, err := resolveRefs(ctx, sdk, []string{arg})
	if err != nil {
		return "", err
	}
	return refs[0], nil
}

// nodesCmd builds the link, unlink and pull commands, which share a shape
func nodesCmd(use, short, verb string, call func(*docsdk.NodesAPI, context.Context, ...string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ref|path>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			refs, err := resolveRefs(cmd.Context(), sdk, args)
			if err != nil {
				return err
			}
			if err := call(sdk.Nodes, cmd.Context(), refs...); err != nil {
				return err
			}
			p.done("%s %d node(s)", verb, len(refs))
			return nil
		},
	}
}

func newLinkCmd() *cobra.Command {
	return nodesCmd("link", "Link nodes to your remote account and push them", "linked", (*docsdk.NodesAPI).Link)
}

func newUnlinkCmd() *cobra.Command {
	return nodesCmd("unlink", "Unlink nodes and remove their remote copies", "unlinked", (*docsdk.NodesAPI).Unlink)
}

func newPullCmd() *cobra.Command {
	return nodesCmd("pull", "Pull remote changes of linked nodes now", "pulled", (*docsdk.NodesAPI).Pull)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <ref|path>",
		Short: "Show the sync link of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			ref, err := resolveRef(cmd.Context(), sdk, args[0])
			if err != nil {
				return err
			}
			status, err := sdk.Nodes.Status(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return p.print(status, func(w io.Writer) {
				state := green.Render("idle")
				if status.InProgress {
					state = cyan.Render("syncing")
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "Node\t%s\n", status.Node)
				fmt.Fprintf(tw, "Remote path\t%s\n", status.RemotePath)
				fmt.Fprintf(tw, "Revision\t%s\n", status.Rev)
				fmt.Fprintf(tw, "Modified\t%s\n", humanize.Time(status.Modified))
				fmt.Fprintf(tw, "Last sync\t%s\n", humanize.Time(status.UpdatedAt))
				fmt.Fprintf(tw, "Linked users\t%d\n", status.LinkedUsers)
				fmt.Fprintf(tw, "State\t%s\n", state)
				tw.Flush()
			})
		},
	}
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll pass over every syncable site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := sdk.Sync.Poll(cmd.Context()); err != nil {
				return err
			}
			p.done("poll pass complete")
			return nil
		},
	}
}
