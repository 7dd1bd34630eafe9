package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
)

type PushOptions struct {
	// FirstTime uploads without overwrite and adopts whatever already sits at the remote path
	FirstTime bool
}

// Push uploads ref, recursively for folders, to user's remote account
func (e *Engine) Push(ctx context.Context, user string, ref repo.NodeRef, opts PushOptions) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}
	return e.push(ctx, client, user, ref, opts)
}

type pushFrame struct {
	node *repo.Node
	path string
	// post frames run after every child of node was handled
	post bool
}

func (e *Engine) push(ctx context.Context, client remote.Client, user string, ref repo.NodeRef, opts PushOptions) error {
	root, err := e.repo.Get(ctx, ref)
	if err != nil {
		return err
	}

	var errs []error
	visited := mapset.NewThreadUnsafeSet[repo.NodeRef]()
	stack := []pushFrame{{node: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.post {
			if err := e.updateFolder(ctx, client, user, f.node, f.path); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if !visited.Add(f.node.Ref) {
			continue
		}

		path, err := e.paths.RemotePath(ctx, f.node.Ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if f.node.IsContent() {
			if err := e.pushFile(ctx, client, user, f.node, path, opts); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		kids, err := e.repo.Children(ctx, f.node.Ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(kids) == 0 {
			if err := e.pushEmptyFolder(ctx, client, user, f.node, path); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		// the folder itself is persisted by its post frame
		if _, err := client.CreateFolder(ctx, path); err != nil && !errors.Is(err, remote.ErrConflict) {
			errs = append(errs, fmt.Errorf("create folder %s: %w", path, err))
			continue
		}

		stack = append(stack, pushFrame{node: f.node, path: path, post: true})
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, pushFrame{node: kids[i]})
		}
	}

	if len(errs) > 0 {
		slog.Warn("push finished with errors", "node", ref, "user", user, "errors", len(errs))
	}
	return errors.Join(errs...)
}

func (e *Engine) pushFile(ctx context.Context, client remote.Client, user string, node *repo.Node, path string, opts PushOptions) error {
	if !opts.FirstTime {
		link, err := e.meta.Get(ctx, node.Ref, user)
		if err != nil {
			return err
		}
		if link != nil && link.LocalVersion == node.Version {
			slog.Debug("push skip unchanged", "path", path, "user", user, "rev", link.Rev)
			return nil
		}
	}

	data, _, err := e.repo.ReadContent(ctx, node.Ref)
	if err != nil {
		return err
	}

	overwrite := !opts.FirstTime
	entry, err := client.PutFile(ctx, path, data, overwrite)
	if errors.Is(err, remote.ErrConflict) && !overwrite {
		slog.Warn("push conflict, adopting remote file", "path", path, "user", user)
		entry, err = client.GetMetadata(ctx, path, "")
	}
	if err != nil {
		return fmt.Errorf("put file %s: %w", path, err)
	}

	slog.Info("pushed file", "path", path, "user", user, "rev", entry.Rev)
	return e.persist(ctx, node, user, entry)
}

func (e *Engine) pushEmptyFolder(ctx context.Context, client remote.Client, user string, node *repo.Node, path string) error {
	entry, err := client.CreateFolder(ctx, path)
	if errors.Is(err, remote.ErrConflict) {
		entry, err = client.GetMetadata(ctx, path, "")
	}
	if err != nil {
		return fmt.Errorf("create folder %s: %w", path, err)
	}
	return e.persist(ctx, node, user, entry)
}

// updateFolder fetches and persists folder metadata once its children are done.
// An unchanged hash leaves the stored link alone.
func (e *Engine) updateFolder(ctx context.Context, client remote.Client, user string, node *repo.Node, path string) error {
	link, err := e.meta.Get(ctx, node.Ref, user)
	if err != nil {
		return err
	}
	hint := ""
	if link != nil {
		hint = link.Hash
	}

	entry, err := client.GetMetadata(ctx, path, hint)
	if errors.Is(err, remote.ErrNotModified) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("folder metadata %s: %w", path, err)
	}
	return e.persist(ctx, node, user, entry)
}

// RefreshFolder re-reads a folder's remote metadata for user
func (e *Engine) RefreshFolder(ctx context.Context, user string, ref repo.NodeRef) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}
	node, err := e.repo.Get(ctx, ref)
	if err != nil {
		return err
	}
	path, err := e.paths.RemotePath(ctx, ref)
	if err != nil {
		return err
	}
	return e.updateFolder(ctx, client, user, node, path)
}

// DeleteRemote removes a remote path captured before the local delete. A missing path is fine.
func (e *Engine) DeleteRemote(ctx context.Context, user, path string) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, path); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	slog.Info("deleted remote", "path", path, "user", user)
	return nil
}

// MoveRemote moves user's copy of ref from oldPath to its current location.
// When oldPath is gone the node is pushed instead.
func (e *Engine) MoveRemote(ctx context.Context, user string, ref repo.NodeRef, oldPath string) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}
	node, err := e.repo.Get(ctx, ref)
	if err != nil {
		return err
	}
	newPath, err := e.paths.RemotePath(ctx, ref)
	if err != nil {
		return err
	}
	if newPath == oldPath {
		return nil
	}

	entry, err := client.Move(ctx, oldPath, newPath)
	if errors.Is(err, remote.ErrNotFound) {
		slog.Warn("move source missing, pushing instead", "from", oldPath, "to", newPath, "user", user)
		return e.push(ctx, client, user, ref, PushOptions{})
	}
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", oldPath, newPath, err)
	}
	if err := e.persist(ctx, node, user, entry); err != nil {
		return err
	}
	slog.Info("moved remote", "from", oldPath, "to", newPath, "user", user)

	if node.IsFolder() {
		return e.refreshDescendants(ctx, client, user, node)
	}
	return nil
}

// refreshDescendants re-reads the metadata of every linked node below a moved folder
func (e *Engine) refreshDescendants(ctx context.Context, client remote.Client, user string, node *repo.Node) error {
	nodes, err := e.repo.Subtree(ctx, node.Ref)
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range nodes[1:] {
		link, err := e.meta.Get(ctx, n.Ref, user)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if link == nil {
			continue
		}
		path, err := e.paths.RemotePath(ctx, n.Ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entry, err := client.GetMetadata(ctx, path, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", path, err))
			continue
		}
		if err := e.persist(ctx, n, user, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fanOut pushes ref to users other than the one whose pull changed it
func (e *Engine) fanOut(ctx context.Context, ref repo.NodeRef, users []string) error {
	var errs []error
	for _, user := range users {
		if err := e.Push(ctx, user, ref, PushOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("fan out to %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}
