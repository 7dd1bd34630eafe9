package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/docsync/internal/metastore"
	"github.com/openmined/docsync/internal/pathmap"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
)

var (
	// ErrNotLinked means the user has no completed remote credentials
	ErrNotLinked = errors.New("remote account not linked")

	// ErrNoUserMetadata means the node has no sync link for the user
	ErrNoUserMetadata = errors.New("node is not synced for user")
)

// Repository is the content repository as seen by the engine
type Repository interface {
	Get(ctx context.Context, ref repo.NodeRef) (*repo.Node, error)
	Children(ctx context.Context, ref repo.NodeRef) ([]*repo.Node, error)
	ChildByName(ctx context.Context, parent repo.NodeRef, name string) (*repo.Node, error)
	Subtree(ctx context.Context, ref repo.NodeRef) ([]*repo.Node, error)
	DisplayPath(ctx context.Context, ref repo.NodeRef) (string, error)
	Path(ctx context.Context, ref repo.NodeRef) (string, error)
	Site(ctx context.Context, ref repo.NodeRef) (*repo.Node, error)

	ReadContent(ctx context.Context, ref repo.NodeRef) ([]byte, string, error)
	WriteContent(ctx context.Context, ref repo.NodeRef, data []byte, mimeType string) (*repo.Node, error)
	CreateNode(ctx context.Context, parent repo.NodeRef, name string, typ repo.NodeType) (*repo.Node, error)
	CreateFile(ctx context.Context, parent repo.NodeRef, name string, data []byte, mimeType string) (*repo.Node, error)

	HasMarker(ctx context.Context, ref repo.NodeRef, marker string) (bool, error)
	AddMarker(ctx context.Context, ref repo.NodeRef, marker string) error
	RemoveMarker(ctx context.Context, who repo.Identity, ref repo.NodeRef, marker string) error

	Subscribe(l repo.Listener)
}

// Engine reconciles repository nodes with each linked user's remote account
type Engine struct {
	repo   Repository
	meta   *metastore.Store
	paths  *pathmap.Mapper
	conn   remote.Connector
	ignore *IgnoreList
	admin  metastore.Elevated
	locks  *keyedLocks
}

type Option func(*Engine)

// WithIgnore replaces the default pull ignore rules
func WithIgnore(ignore *IgnoreList) Option {
	return func(e *Engine) {
		e.ignore = ignore
	}
}

func New(r Repository, meta *metastore.Store, paths *pathmap.Mapper, conn remote.Connector, opts ...Option) *Engine {
	e := &Engine{
		repo:   r,
		meta:   meta,
		paths:  paths,
		conn:   conn,
		ignore: NewIgnoreList(nil),
		admin:  metastore.Elevate(),
		locks:  newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// connect returns ErrNotLinked instead of a nil client
func (e *Engine) connect(ctx context.Context, user string) (remote.Client, error) {
	client, err := e.conn.Connect(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", user, err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLinked, user)
	}
	return client, nil
}

// persist stores entry as the sync state of (node, user) under the single-writer lock
func (e *Engine) persist(ctx context.Context, node *repo.Node, user string, entry *remote.Entry) error {
	unlock := e.locks.Lock(node.Ref, user)
	defer unlock()

	err := e.meta.Put(ctx, node.Ref, user, metastore.Fields{
		Rev:          entry.Rev,
		Hash:         entry.Hash,
		Modified:     entry.Modified,
		IsDir:        entry.IsDir,
		LocalVersion: node.Version,
	})
	if err != nil {
		return fmt.Errorf("persist %s for %s: %w", node.Ref, user, err)
	}
	slog.Debug("sync link", "node", node.Ref, "user", user, "rev", entry.Rev, "path", entry.Path)
	return nil
}

// linkedUsers returns the users linked on ref in name order
func (e *Engine) linkedUsers(ctx context.Context, ref repo.NodeRef) ([]string, error) {
	users, err := e.meta.ListLinkedUsers(ctx, ref)
	if err != nil {
		return nil, err
	}
	return sortedKeys(users), nil
}
