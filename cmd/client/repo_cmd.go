package main

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var errNameRequired = errors.New("--name is required when reading from stdin")

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Browse and edit the content repository",
	}
	cmd.AddCommand(newRepoSitesCmd())
	cmd.AddCommand(newRepoCreateSiteCmd())
	cmd.AddCommand(newRepoResolveCmd())
	cmd.AddCommand(newRepoLsCmd())
	cmd.AddCommand(newRepoMkdirCmd())
	cmd.AddCommand(newRepoPutCmd())
	cmd.AddCommand(newRepoCatCmd())
	cmd.AddCommand(newRepoWriteCmd())
	cmd.AddCommand(newRepoMvCmd())
	cmd.AddCommand(newRepoCpCmd())
	cmd.AddCommand(newRepoRmCmd())
	return cmd
}

// readInput reads a local file, or stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func detectMimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func newRepoSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			sites, err := sdk.Repo.Sites(cmd.Context())
			if err != nil {
				return err
			}
			return p.nodes(sites)
		},
	}
}

func newRepoCreateSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-site <name>",
		Short: "Create a site and its document library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			site, err := sdk.Repo.CreateSite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.print(site, func(w io.Writer) {
				p.done("created site %s, library %s", site.Site.Ref, site.Library.Ref)
			})
		},
	}
}

func newRepoResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Find a node by path, e.g. \"/Company Home/Sites/eng/documentLibrary\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			node, err := sdk.Repo.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
}

func newRepoLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <ref|path>",
		Short: "List the children of a folder",
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
			children, err := sdk.Repo.Children(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return p.nodes(children)
		},
	}
}

func newRepoMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			parent, err := resolveRef(cmd.Context(), sdk, args[0])
			if err != nil {
				return err
			}
			node, err := sdk.Repo.CreateFolder(cmd.Context(), parent, args[1])
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
}

func newRepoPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <parent> <file|->",
		Short: "Upload a local file as a new document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				if args[1] == "-" {
					return errNameRequired
				}
				name = filepath.Base(args[1])
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			parent, err := resolveRef(cmd.Context(), sdk, args[0])
			if err != nil {
				return err
			}
			node, err := sdk.Repo.CreateFile(cmd.Context(), parent, name, data, mimeTypeFlag(cmd, name, data))
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
	cmd.Flags().String("name", "", "Document name (default is the file name)")
	cmd.Flags().String("mime-type", "", "Content type (default is detected)")
	return cmd
}

func newRepoCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <ref|path>",
		Short: "Print the content of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			ref, err := resolveRef(cmd.Context(), sdk, args[0])
			if err != nil {
				return err
			}
			data, _, err := sdk.Repo.ReadContent(cmd.Context(), ref)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newRepoWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <ref|path> <file|->",
		Short: "Replace the content of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			ref, err := resolveRef(cmd.Context(), sdk, args[0])
			if err != nil {
				return err
			}
			node, err := sdk.Repo.WriteContent(cmd.Context(), ref, data, mimeTypeFlag(cmd, args[1], data))
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
	cmd.Flags().String("mime-type", "", "Content type (default is detected)")
	return cmd
}

func newRepoMvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <ref|path> <parent>",
		Short: "Move a node under a new parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			refs, err := resolveRefs(cmd.Context(), sdk, args)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			node, err := sdk.Repo.Move(cmd.Context(), refs[0], refs[1], name)
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
	cmd.Flags().String("name", "", "New name (default keeps the current one)")
	return cmd
}

func newRepoCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <ref|path> <parent>",
		Short: "Copy a node and its subtree under a new parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, p, err := newClient(cmd)
			if err != nil {
				return err
			}
			refs, err := resolveRefs(cmd.Context(), sdk, args)
			if err != nil {
				return err
			}
			node, err := sdk.Repo.Copy(cmd.Context(), refs[0], refs[1])
			if err != nil {
				return err
			}
			return p.node(node)
		},
	}
}

func newRepoRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <ref|path>...",
		Short: "Delete nodes and their subtrees",
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
			for _, ref := range refs {
				if err := sdk.Repo.Delete(cmd.Context(), ref); err != nil {
					return err
				}
			}
			p.done("deleted %d node(s)", len(refs))
			return nil
		},
	}
}

func mimeTypeFlag(cmd *cobra.Command, name string, data []byte) string {
	if t, _ := cmd.Flags().GetString("mime-type"); t != "" {
		return t
	}
	return detectMimeType(name, data)
}
