package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
)

// LinkStatus is the sync state of one node for one user
type LinkStatus struct {
	Node        repo.NodeRef `json:"node"`
	User        string       `json:"user"`
	RemotePath  string       `json:"remotePath"`
	Rev         string       `json:"rev"`
	Hash        string       `json:"hash,omitempty"`
	Modified    time.Time    `json:"modified"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	LinkedUsers int          `json:"linkedUsers"`
	InProgress  bool         `json:"inProgress"`
}

// Link pushes each node to user's remote account for the first time and registers its site with the poller
func (e *Engine) Link(ctx context.Context, user string, refs []repo.NodeRef) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}

	var errs []error
	for _, ref := range refs {
		if err := e.link(ctx, client, user, ref); err != nil {
			errs = append(errs, fmt.Errorf("link %s: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) link(ctx context.Context, client remote.Client, user string, ref repo.NodeRef) error {
	node, err := e.repo.Get(ctx, ref)
	if err != nil {
		return err
	}
	if node.Type == repo.TypeSite {
		return fmt.Errorf("%w: link a folder or document inside the site", repo.ErrNotASite)
	}
	site, err := e.repo.Site(ctx, ref)
	if err != nil {
		return err
	}

	slog.Info("link", "node", ref, "user", user, "site", site.Name)
	// a partial push still leaves links behind, so the site is registered either way
	pushErr := e.push(ctx, client, user, ref, PushOptions{FirstTime: true})
	if err := e.meta.MakeSyncable(ctx, site.Ref); err != nil {
		return errors.Join(pushErr, err)
	}
	return pushErr
}

// Unlink deletes user's remote copy of each node and drops the sync links below it
func (e *Engine) Unlink(ctx context.Context, user string, refs []repo.NodeRef) error {
	client, err := e.connect(ctx, user)
	if err != nil {
		return err
	}

	var errs []error
	for _, ref := range refs {
		if err := e.unlink(ctx, client, user, ref); err != nil {
			errs = append(errs, fmt.Errorf("unlink %s: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) unlink(ctx context.Context, client remote.Client, user string, ref repo.NodeRef) error {
	link, err := e.meta.Get(ctx, ref, user)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrNoUserMetadata
	}

	path, err := e.paths.RemotePath(ctx, ref)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, path); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	nodes, err := e.repo.Subtree(ctx, ref)
	if err != nil {
		return err
	}
	// children before parents
	for i := len(nodes) - 1; i >= 0; i-- {
		if err := e.dropLink(ctx, nodes[i].Ref, user); err != nil {
			return err
		}
	}

	slog.Info("unlink", "node", ref, "user", user, "path", path)
	return nil
}

func (e *Engine) dropLink(ctx context.Context, ref repo.NodeRef, user string) error {
	unlock := e.locks.Lock(ref, user)
	defer unlock()
	_, err := e.meta.Delete(ctx, e.admin, ref, user)
	return err
}

// LinkStatus reports the stored sync state of ref for user
func (e *Engine) LinkStatus(ctx context.Context, user string, ref repo.NodeRef) (*LinkStatus, error) {
	link, err := e.meta.Get(ctx, ref, user)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoUserMetadata, ref)
	}

	path, err := e.paths.RemotePath(ctx, ref)
	if err != nil {
		return nil, err
	}
	count, err := e.meta.CountLinks(ctx, ref)
	if err != nil {
		return nil, err
	}
	busy, err := e.repo.HasMarker(ctx, ref, repo.MarkerSyncInProgress)
	if err != nil {
		return nil, err
	}

	return &LinkStatus{
		Node:        ref,
		User:        user,
		RemotePath:  path,
		Rev:         link.Rev,
		Hash:        link.Hash,
		Modified:    link.Modified,
		UpdatedAt:   link.UpdatedAt,
		LinkedUsers: count,
		InProgress:  busy,
	}, nil
}
