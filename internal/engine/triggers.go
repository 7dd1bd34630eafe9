package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/openmined/docsync/internal/repo"
)

const defaultQueueSize = 1024

var ErrTriggersClosed = errors.New("trigger queue closed")

type job struct {
	name string
	node repo.NodeRef
	run  func(ctx context.Context) error
}

// Triggers turns repository events into remote operations on a single serial worker
type Triggers struct {
	engine *Engine

	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

var (
	_ repo.Listener       = (*Triggers)(nil)
	_ repo.DeletePreparer = (*Triggers)(nil)
)

func NewTriggers(engine *Engine, queueSize int) *Triggers {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	t := &Triggers{
		engine: engine,
		jobs:   make(chan job, queueSize),
	}
	t.wg.Add(1)
	go t.worker()
	return t
}

// Attach subscribes the triggers to repository events
func (t *Triggers) Attach(r Repository) {
	r.Subscribe(t)
}

func (t *Triggers) worker() {
	defer t.wg.Done()
	ctx := context.Background()
	for j := range t.jobs {
		if err := j.run(ctx); err != nil {
			slog.Error("trigger", "job", j.name, "node", j.node, "error", err)
		}
	}
}

func (t *Triggers) enqueue(j job) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTriggersClosed
	}
	t.jobs <- j
	return nil
}

// Flush waits until every job queued before it has run
func (t *Triggers) Flush(ctx context.Context) error {
	done := make(chan struct{})
	err := t.enqueue(job{name: "flush", run: func(context.Context) error {
		close(done)
		return nil
	}})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and drains the queue
func (t *Triggers) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.jobs)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Triggers) HandleEvent(_ context.Context, ev repo.Event) {
	var j job
	switch ev.Kind {
	case repo.EventContentUpdated:
		j = job{name: "content-updated", node: ev.Node, run: func(ctx context.Context) error {
			return t.onContentUpdated(ctx, ev.Node)
		}}
	case repo.EventChildCreated:
		j = job{name: "child-created", node: ev.Node, run: func(ctx context.Context) error {
			return t.onChildCreated(ctx, ev.Node, ev.Parent)
		}}
	case repo.EventCopied:
		j = job{name: "copied", node: ev.Node, run: func(ctx context.Context) error {
			return t.onCopied(ctx, ev.Node)
		}}
	case repo.EventMoved:
		j = job{name: "moved", node: ev.Node, run: func(ctx context.Context) error {
			return t.onMoved(ctx, ev)
		}}
	default:
		return
	}

	if err := t.enqueue(j); err != nil {
		slog.Warn("trigger dropped", "job", j.name, "node", ev.Node, "error", err)
	}
}

// PrepareDelete snapshots the remote path and linked users while the node still exists
func (t *Triggers) PrepareDelete(ctx context.Context, ev repo.Event) func(context.Context) {
	users, err := t.engine.linkedUsers(ctx, ev.Node)
	if err != nil {
		slog.Error("trigger before-delete", "node", ev.Node, "error", err)
		return nil
	}
	if len(users) == 0 {
		return nil
	}
	path := t.engine.paths.MapDisplayPath(ev.OldPath)

	return func(context.Context) {
		err := t.enqueue(job{name: "delete", node: ev.Node, run: func(ctx context.Context) error {
			var errs []error
			for _, user := range users {
				if err := t.engine.DeleteRemote(ctx, user, path); err != nil {
					errs = append(errs, err)
					continue
				}
				if err := t.refreshParent(ctx, user, ev.Parent); err != nil && !errors.Is(err, repo.ErrNodeNotFound) {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}})
		if err != nil {
			slog.Warn("trigger dropped", "job", "delete", "node", ev.Node, "error", err)
		}
	}
}

// withInProgress flags ref while fn runs
func (t *Triggers) withInProgress(ctx context.Context, ref repo.NodeRef, fn func() error) error {
	r := t.engine.repo
	if err := r.AddMarker(ctx, ref, repo.MarkerSyncInProgress); err != nil {
		return err
	}
	defer func() {
		if err := r.RemoveMarker(ctx, repo.Admin, ref, repo.MarkerSyncInProgress); err != nil && !errors.Is(err, repo.ErrNodeNotFound) {
			slog.Warn("clear sync marker", "node", ref, "error", err)
		}
	}()
	return fn()
}

func (t *Triggers) onContentUpdated(ctx context.Context, ref repo.NodeRef) error {
	users, err := t.engine.linkedUsers(ctx, ref)
	if err != nil || len(users) == 0 {
		return err
	}

	node, err := t.engine.repo.Get(ctx, ref)
	if err != nil {
		return err
	}

	return t.withInProgress(ctx, ref, func() error {
		var errs []error
		for _, user := range users {
			if err := t.engine.Push(ctx, user, ref, PushOptions{}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
				continue
			}
			if err := t.refreshParent(ctx, user, node.Parent); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
			}
		}
		return errors.Join(errs...)
	})
}

// refreshParent stores the new remote hash of parent when user syncs it,
// so the next poll of parent is a not-modified check
func (t *Triggers) refreshParent(ctx context.Context, user string, parent repo.NodeRef) error {
	if parent == "" {
		return nil
	}
	link, err := t.engine.meta.Get(ctx, parent, user)
	if err != nil || link == nil {
		return err
	}
	return t.engine.RefreshFolder(ctx, user, parent)
}

// newcomers are the users linked on parent but not yet on child
func (t *Triggers) newcomers(ctx context.Context, child, parent repo.NodeRef) ([]string, error) {
	parentUsers, err := t.engine.meta.ListLinkedUsers(ctx, parent)
	if err != nil {
		return nil, err
	}
	childUsers, err := t.engine.meta.ListLinkedUsers(ctx, child)
	if err != nil {
		return nil, err
	}

	var users []string
	for _, u := range sortedKeys(parentUsers) {
		if _, ok := childUsers[u]; !ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (t *Triggers) onChildCreated(ctx context.Context, child, parent repo.NodeRef) error {
	users, err := t.newcomers(ctx, child, parent)
	if err != nil || len(users) == 0 {
		return err
	}

	return t.withInProgress(ctx, child, func() error {
		var errs []error
		for _, user := range users {
			if err := t.engine.Push(ctx, user, child, PushOptions{}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
				continue
			}
			if err := t.refreshParent(ctx, user, parent); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
			}
		}
		return errors.Join(errs...)
	})
}

// onCopied strips sync state from the copy. A copy is never synced by inheritance.
func (t *Triggers) onCopied(ctx context.Context, ref repo.NodeRef) error {
	nodes, err := t.engine.repo.Subtree(ctx, ref)
	if errors.Is(err, repo.ErrNodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range nodes {
		if err := t.engine.meta.DeleteAllForNode(ctx, t.engine.admin, n.Ref); err != nil {
			errs = append(errs, err)
		}
		if err := t.engine.repo.RemoveMarker(ctx, repo.Admin, n.Ref, repo.MarkerSyncInProgress); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Triggers) onMoved(ctx context.Context, ev repo.Event) error {
	e := t.engine
	ref, parent := ev.Node, ev.Parent
	users, err := e.linkedUsers(ctx, ref)
	if err != nil {
		return err
	}
	newcomers, err := t.newcomers(ctx, ref, parent)
	if err != nil {
		return err
	}
	if len(users) == 0 && len(newcomers) == 0 {
		return nil
	}

	remoteOld := e.paths.MapDisplayPath(ev.OldPath)
	return t.withInProgress(ctx, ref, func() error {
		var errs []error
		for _, user := range users {
			if err := e.MoveRemote(ctx, user, ref, remoteOld); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
				continue
			}
			errs = append(errs, t.refreshParents(ctx, user, ev.OldParent, parent))
		}
		// users of the destination folder get the node like any new child
		for _, user := range newcomers {
			if err := e.Push(ctx, user, ref, PushOptions{}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", user, err))
				continue
			}
			errs = append(errs, t.refreshParents(ctx, user, parent))
		}
		return errors.Join(errs...)
	})
}

func (t *Triggers) refreshParents(ctx context.Context, user string, parents ...repo.NodeRef) error {
	var errs []error
	for i, p := range parents {
		if slices.Contains(parents[:i], p) {
			continue
		}
		if err := t.refreshParent(ctx, user, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}
