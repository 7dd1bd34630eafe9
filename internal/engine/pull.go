package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
)

// pullPass carries the state of one user's pull across several linked roots
type pullPass struct {
	client  remote.Client
	user    string
	visited mapset.Set[repo.NodeRef]

	// nodes written by the pull that other linked users still need
	updated []repo.NodeRef
	created []repo.NodeRef
}

func (e *Engine) newPullPass(client remote.Client, user string) *pullPass {
	return &pullPass{
		client:  client,
		user:    user,
		visited: mapset.NewThreadUnsafeSet[repo.NodeRef](),
	}
}

// PullSite brings every node user linked inside site up to date with the remote.
// A user without remote credentials is skipped.
func (e *Engine) PullSite(ctx context.Context, site repo.NodeRef, user string) error {
	client, err := e.conn.Connect(ctx, user)
	if err != nil {
		return fmt.Errorf("connect %s: %w", user, err)
	}
	if client == nil {
		slog.Debug("pull skip, no credentials", "site", site, "user", user)
		return nil
	}

	refs, err := e.meta.LinkedNodes(ctx, site, user)
	if err != nil {
		return err
	}

	nodes := make([]*repo.Node, 0, len(refs))
	folders := mapset.NewThreadUnsafeSet[repo.NodeRef]()
	for _, ref := range refs {
		n, err := e.repo.Get(ctx, ref)
		if err != nil {
			return err
		}
		if n.IsFolder() {
			folders.Add(n.Ref)
		}
		nodes = append(nodes, n)
	}

	pass := e.newPullPass(client, user)
	var errs []error
	for _, n := range nodes {
		// documents inside a linked folder are handled by the folder
		if n.IsContent() && folders.Contains(n.Parent) {
			continue
		}
		if err := e.pullNode(ctx, pass, n); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, e.fanOutPass(ctx, pass))
	return errors.Join(errs...)
}

// PullNow pulls an explicit list of linked nodes for user, outside of the poll schedule
func (e *Engine) PullNow(ctx context.Context, user string, refs []repo.NodeRef) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}

	pass := e.newPullPass(client, user)
	var errs []error
	for _, ref := range refs {
		link, err := e.meta.Get(ctx, ref, user)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if link == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoUserMetadata, ref))
			continue
		}
		n, err := e.repo.Get(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.pullNode(ctx, pass, n); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, e.fanOutPass(ctx, pass))
	return errors.Join(errs...)
}

func (e *Engine) pullNode(ctx context.Context, pass *pullPass, n *repo.Node) error {
	path, err := e.paths.RemotePath(ctx, n.Ref)
	if err != nil {
		return err
	}
	if n.IsContent() {
		if !pass.visited.Add(n.Ref) {
			return nil
		}
		return e.pullDocument(ctx, pass, n, path)
	}
	return e.pullFolder(ctx, pass, n, path)
}

// pullDocument downloads a file whose remote revision differs from the stored one
func (e *Engine) pullDocument(ctx context.Context, pass *pullPass, n *repo.Node, path string) error {
	link, err := e.meta.Get(ctx, n.Ref, pass.user)
	if err != nil {
		return err
	}

	entry, err := pass.client.GetMetadata(ctx, path, "")
	if err != nil {
		return fmt.Errorf("file metadata %s: %w", path, err)
	}
	if link != nil && link.Rev == entry.Rev {
		return nil
	}

	file, err := pass.client.GetFile(ctx, path)
	if err != nil {
		return fmt.Errorf("get file %s: %w", path, err)
	}
	updated, err := e.repo.WriteContent(repo.WithoutEvents(ctx), n.Ref, file.Data, file.ContentType)
	if err != nil {
		return err
	}
	if err := e.persist(ctx, updated, pass.user, file.Entry); err != nil {
		return err
	}

	slog.Info("pulled file", "path", path, "user", pass.user, "rev", file.Entry.Rev)
	pass.updated = append(pass.updated, n.Ref)
	return nil
}

type pullFrame struct {
	node *repo.Node
	path string
	// root is the remote path of the linked folder the walk started from
	root string
	post bool
}

func (e *Engine) pullFolder(ctx context.Context, pass *pullPass, start *repo.Node, startPath string) error {
	var errs []error
	createdHere := mapset.NewThreadUnsafeSet[repo.NodeRef]()
	stack := []pullFrame{{node: start, path: startPath, root: startPath}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.post {
			entry, err := pass.client.GetMetadata(ctx, f.path, "")
			if err != nil {
				errs = append(errs, fmt.Errorf("folder metadata %s: %w", f.path, err))
				continue
			}
			if err := e.persist(ctx, f.node, pass.user, entry); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if !pass.visited.Add(f.node.Ref) {
			continue
		}

		hint := ""
		if link, err := e.meta.Get(ctx, f.node.Ref, pass.user); err != nil {
			errs = append(errs, err)
			continue
		} else if link != nil {
			hint = link.Hash
		}

		entry, err := pass.client.GetMetadata(ctx, f.path, hint)
		if errors.Is(err, remote.ErrNotModified) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("folder metadata %s: %w", f.path, err))
			continue
		}

		stack = append(stack, pullFrame{node: f.node, path: f.path, root: f.root, post: true})
		var subfolders []pullFrame

		for _, child := range entry.Children {
			if child.Deleted {
				continue
			}
			name := strings.TrimPrefix(child.Path, entry.Path+"/")
			if rel := relPath(f.root, child); e.ignore.ShouldIgnore(rel) {
				slog.Debug("pull ignore", "path", child.Path)
				continue
			}

			local, err := e.repo.ChildByName(ctx, f.node.Ref, name)
			if errors.Is(err, repo.ErrNodeNotFound) {
				created, err := e.pullCreate(ctx, pass, f.node, name, child)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				createdHere.Add(created.Ref)
				// nested creations travel with their created ancestor
				if !createdHere.Contains(f.node.Ref) {
					pass.created = append(pass.created, created.Ref)
				}
				if created.IsFolder() {
					subfolders = append(subfolders, pullFrame{node: created, path: child.Path, root: f.root})
				}
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}

			switch {
			case child.IsDir && local.IsFolder():
				subfolders = append(subfolders, pullFrame{node: local, path: child.Path, root: f.root})
			case !child.IsDir && local.IsContent():
				if !pass.visited.Add(local.Ref) {
					continue
				}
				if err := e.pullDocument(ctx, pass, local, child.Path); err != nil {
					errs = append(errs, err)
				}
			default:
				slog.Warn("pull type mismatch", "path", child.Path, "remoteDir", child.IsDir, "local", local.Type)
			}
		}

		for i := len(subfolders) - 1; i >= 0; i-- {
			stack = append(stack, subfolders[i])
		}
	}

	return errors.Join(errs...)
}

// pullCreate creates a local node for a remote child that has no local counterpart
func (e *Engine) pullCreate(ctx context.Context, pass *pullPass, parent *repo.Node, name string, child *remote.Entry) (*repo.Node, error) {
	quiet := repo.WithoutEvents(ctx)

	if child.IsDir {
		created, err := e.repo.CreateNode(quiet, parent.Ref, name, repo.TypeFolder)
		if err != nil {
			return nil, err
		}
		slog.Info("pulled folder", "path", child.Path, "user", pass.user)
		return created, nil
	}

	file, err := pass.client.GetFile(ctx, child.Path)
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", child.Path, err)
	}
	created, err := e.repo.CreateFile(quiet, parent.Ref, name, file.Data, file.ContentType)
	if err != nil {
		return nil, err
	}
	pass.visited.Add(created.Ref)
	if err := e.persist(ctx, created, pass.user, file.Entry); err != nil {
		return nil, err
	}
	slog.Info("pulled new file", "path", child.Path, "user", pass.user, "rev", file.Entry.Rev)
	return created, nil
}

// fanOutPass pushes what the pull wrote to the other users sharing those nodes
func (e *Engine) fanOutPass(ctx context.Context, pass *pullPass) error {
	var errs []error

	for _, ref := range pass.updated {
		users, err := e.linkedUsers(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, e.fanOut(ctx, ref, without(users, pass.user)))
	}

	for _, ref := range pass.created {
		node, err := e.repo.Get(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parentUsers, err := e.meta.ListLinkedUsers(ctx, node.Parent)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		childUsers, err := e.meta.ListLinkedUsers(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var targets []string
		for _, u := range sortedKeys(parentUsers) {
			if _, linked := childUsers[u]; !linked && u != pass.user {
				targets = append(targets, u)
			}
		}
		errs = append(errs, e.fanOut(ctx, ref, targets))
	}

	return errors.Join(errs...)
}

// relPath is the child's path below the linked root, with a trailing slash for folders
func relPath(root string, child *remote.Entry) string {
	rel := strings.TrimPrefix(child.Path, root+"/")
	if child.IsDir {
		rel += "/"
	}
	return rel
}

func without(users []string, skip string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != skip {
			out = append(out, u)
		}
	}
	return out
}
