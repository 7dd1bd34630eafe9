package repo

import (
	"context"
	"log/slog"
)

type EventKind string

const (
	EventContentUpdated EventKind = "content-updated"
	EventChildCreated   EventKind = "child-created"
	EventBeforeDelete   EventKind = "before-delete"
	EventCopied         EventKind = "copied"
	EventMoved          EventKind = "moved"
)

// Event describes a committed repository mutation.
type Event struct {
	Kind EventKind
	Node NodeRef

	// Parent is the new parent for child-created and moved, the current one for before-delete
	Parent NodeRef

	// OldParent is the parent of a moved node before the move
	OldParent NodeRef

	// Source is the original node of a copy
	Source NodeRef

	// OldPath is the full display path of Node before a move or delete
	OldPath string
}

// Listener receives events once per committed transaction, deduplicated per (kind, node).
// It is never called while the transaction is open.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event)
}

// DeletePreparer is an optional Listener extension. PrepareDelete runs before a node is deleted,
// while it can still be read, and the returned func (if any) runs after the delete committed.
type DeletePreparer interface {
	PrepareDelete(ctx context.Context, ev Event) func(context.Context)
}

type suppressKey struct{}

// WithoutEvents marks writes made with ctx as invisible to listeners.
func WithoutEvents(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

func eventsSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressKey{}).(bool)
	return v
}

// Subscribe registers l for all future events
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Listener(nil), s.listeners...)
}

// dispatch delivers the events of one committed transaction
func (s *Store) dispatch(ctx context.Context, events []Event) {
	if eventsSuppressed(ctx) || len(events) == 0 {
		return
	}

	type key struct {
		kind EventKind
		node NodeRef
	}
	created := make(map[NodeRef]bool)
	for _, ev := range events {
		if ev.Kind == EventChildCreated {
			created[ev.Node] = true
		}
	}

	seen := make(map[key]bool, len(events))
	deduped := make([]Event, 0, len(events))
	for _, ev := range events {
		// a node created in this transaction is new, not updated
		if ev.Kind == EventContentUpdated && created[ev.Node] {
			continue
		}
		k := key{ev.Kind, ev.Node}
		if seen[k] {
			continue
		}
		seen[k] = true
		deduped = append(deduped, ev)
	}

	ctx = context.WithoutCancel(ctx)
	for _, l := range s.snapshotListeners() {
		for _, ev := range deduped {
			slog.Debug("repo event", "kind", ev.Kind, "node", ev.Node)
			l.HandleEvent(ctx, ev)
		}
	}
}

// prepareDelete collects the post-commit callbacks of delete-aware listeners
func (s *Store) prepareDelete(ctx context.Context, ev Event) []func(context.Context) {
	if eventsSuppressed(ctx) {
		return nil
	}

	var after []func(context.Context)
	for _, l := range s.snapshotListeners() {
		p, ok := l.(DeletePreparer)
		if !ok {
			continue
		}
		if fn := p.PrepareDelete(ctx, ev); fn != nil {
			after = append(after, fn)
		}
	}
	return after
}
