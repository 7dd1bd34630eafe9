package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/spf13/afero"
)

// parent chains longer than this are treated as corrupt
const maxDepth = 4096

// Store is the hierarchical content repository. Node metadata lives in the database,
// file bodies on an afero filesystem.
type Store struct {
	db    *sqlx.DB
	blobs *blobStore
	now   func() time.Time

	mu        sync.RWMutex
	listeners []Listener
	rootRef   NodeRef
}

func NewStore(database *sqlx.DB, fsys afero.Fs, contentDir string) *Store {
	return &Store{
		db:    database,
		blobs: newBlobStore(fsys, contentDir),
		now:   time.Now,
	}
}

// Init ensures the root folder and the Sites folder exist
func (s *Store) Init(ctx context.Context) error {
	var root *Node
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var row dbNode
		err := sqlx.GetContext(ctx, tx, &row,
			tx.Rebind("SELECT "+nodeColumns+" FROM nodes WHERE parent_id IS NULL AND name = ?"), RootName)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			root, err = s.insertNode(ctx, tx, nil, RootName, TypeFolder, nodeBody{})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			root = row.toNode()
		}

		if _, err := childByName(ctx, tx, root.Ref, SitesName); errors.Is(err, ErrNodeNotFound) {
			_, err = s.insertNode(ctx, tx, root, SitesName, TypeFolder, nodeBody{})
			return err
		} else {
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	s.mu.Lock()
	s.rootRef = root.Ref
	s.mu.Unlock()

	slog.Debug("repository ready", "root", root.Ref)
	return nil
}

// Root returns the repository root
func (s *Store) Root(ctx context.Context) (*Node, error) {
	s.mu.RLock()
	ref := s.rootRef
	s.mu.RUnlock()
	if ref == "" {
		return nil, fmt.Errorf("repository not initialized")
	}
	return s.Get(ctx, ref)
}

func (s *Store) Get(ctx context.Context, ref NodeRef) (*Node, error) {
	return getNode(ctx, s.db, ref)
}

// Children lists the direct children of ref ordered by name
func (s *Store) Children(ctx context.Context, ref NodeRef) ([]*Node, error) {
	return children(ctx, s.db, ref)
}

func (s *Store) ChildByName(ctx context.Context, parent NodeRef, name string) (*Node, error) {
	return childByName(ctx, s.db, parent, name)
}

// Subtree returns ref and all of its descendants, parents before children
func (s *Store) Subtree(ctx context.Context, ref NodeRef) ([]*Node, error) {
	return subtree(ctx, s.db, ref)
}

// Path returns the full display path of ref, e.g. "/Company Home/Sites/eng/documentLibrary/a.txt"
func (s *Store) Path(ctx context.Context, ref NodeRef) (string, error) {
	names, err := s.ancestry(ctx, ref)
	if err != nil {
		return "", err
	}
	return "/" + strings.Join(names, "/"), nil
}

// DisplayPath returns the display path of the folder containing ref
func (s *Store) DisplayPath(ctx context.Context, ref NodeRef) (string, error) {
	names, err := s.ancestry(ctx, ref)
	if err != nil {
		return "", err
	}
	return "/" + strings.Join(names[:len(names)-1], "/"), nil
}

// ancestry returns the names from the root down to ref
func (s *Store) ancestry(ctx context.Context, ref NodeRef) ([]string, error) {
	var names []string
	cur := ref
	for depth := 0; cur != ""; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("node %s: parent chain too deep", ref)
		}
		n, err := s.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		names = append(names, n.Name)
		cur = n.Parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// Resolve finds a node by its full display path
func (s *Store) Resolve(ctx context.Context, path string) (*Node, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] != RootName {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	node, err := s.Root(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range parts[1:] {
		if name == "" {
			continue
		}
		node, err = s.ChildByName(ctx, node.Ref, name)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Site returns the site containing ref, or the site itself
func (s *Store) Site(ctx context.Context, ref NodeRef) (*Node, error) {
	n, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if n.Type == TypeSite {
		return n, nil
	}
	if n.Site == "" {
		return nil, ErrNotASite
	}
	return s.Get(ctx, n.Site)
}

func (s *Store) sitesFolder(ctx context.Context) (*Node, error) {
	root, err := s.Root(ctx)
	if err != nil {
		return nil, err
	}
	return s.ChildByName(ctx, root.Ref, SitesName)
}

// Sites lists every site ordered by name
func (s *Store) Sites(ctx context.Context) ([]*Node, error) {
	folder, err := s.sitesFolder(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.Children(ctx, folder.Ref)
	if err != nil {
		return nil, err
	}
	sites := all[:0]
	for _, n := range all {
		if n.Type == TypeSite {
			sites = append(sites, n)
		}
	}
	return sites, nil
}

func (s *Store) SiteByName(ctx context.Context, name string) (*Node, error) {
	folder, err := s.sitesFolder(ctx)
	if err != nil {
		return nil, err
	}
	site, err := s.ChildByName(ctx, folder.Ref, name)
	if err != nil {
		return nil, err
	}
	if site.Type != TypeSite {
		return nil, ErrNotASite
	}
	return site, nil
}

// DocumentLibrary returns the document library folder of a site
func (s *Store) DocumentLibrary(ctx context.Context, site NodeRef) (*Node, error) {
	return s.ChildByName(ctx, site, LibraryName)
}

// MarkedUnder lists the nodes of a site carrying marker
func (s *Store) MarkedUnder(ctx context.Context, site NodeRef, marker string) ([]*Node, error) {
	var rows []dbNode
	query := s.db.Rebind(`SELECT n.id, n.parent_id, n.site_id, n.name, n.type, n.mime_type, n.size, n.content_key, n.version, n.created_at, n.modified_at
		FROM nodes n JOIN node_markers m ON m.node_id = n.id
		WHERE n.site_id = ? AND m.marker = ?
		ORDER BY n.name`)
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, string(site), marker); err != nil {
		return nil, fmt.Errorf("list marked nodes: %w", err)
	}
	return toNodes(rows), nil
}

func (s *Store) HasMarker(ctx context.Context, ref NodeRef, marker string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n,
		s.db.Rebind("SELECT COUNT(*) FROM node_markers WHERE node_id = ? AND marker = ?"), string(ref), marker)
	if err != nil {
		return false, fmt.Errorf("read marker: %w", err)
	}
	return n > 0, nil
}

// Markers lists the markers on ref in name order
func (s *Store) Markers(ctx context.Context, ref NodeRef) ([]string, error) {
	return markers(ctx, s.db, ref)
}

func (s *Store) AddMarker(ctx context.Context, ref NodeRef, marker string) error {
	return AddMarkerTx(ctx, s.db, ref, marker)
}

// RemoveMarker removes marker from ref as who. Protected markers require Admin.
func (s *Store) RemoveMarker(ctx context.Context, who Identity, ref NodeRef, marker string) error {
	return RemoveMarkerTx(ctx, s.db, who, ref, marker)
}

// AddMarkerTx adds marker to ref inside a caller-owned transaction
func AddMarkerTx(ctx context.Context, ext sqlx.ExtContext, ref NodeRef, marker string) error {
	_, err := ext.ExecContext(ctx,
		ext.Rebind("INSERT INTO node_markers (node_id, marker) VALUES (?, ?) ON CONFLICT DO NOTHING"),
		string(ref), marker)
	if err != nil {
		return fmt.Errorf("add marker %s: %w", marker, err)
	}
	return nil
}

// RemoveMarkerTx removes marker from ref inside a caller-owned transaction
func RemoveMarkerTx(ctx context.Context, ext sqlx.ExtContext, who Identity, ref NodeRef, marker string) error {
	if protectedMarkers[marker] && who != Admin {
		return fmt.Errorf("%w: %s cannot remove marker %s", ErrAccessDenied, who, marker)
	}
	_, err := ext.ExecContext(ctx,
		ext.Rebind("DELETE FROM node_markers WHERE node_id = ? AND marker = ?"), string(ref), marker)
	if err != nil {
		return fmt.Errorf("remove marker %s: %w", marker, err)
	}
	return nil
}

// -------------------------------------------------------------------------------------------
// queries shared by the pool and transactions

func getNode(ctx context.Context, q sqlx.QueryerContext, ref NodeRef) (*Node, error) {
	var row dbNode
	err := sqlx.GetContext(ctx, q, &row, rebind(q, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?"), string(ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return row.toNode(), nil
}

func children(ctx context.Context, q sqlx.QueryerContext, ref NodeRef) ([]*Node, error) {
	var rows []dbNode
	err := sqlx.SelectContext(ctx, q, &rows,
		rebind(q, "SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ? ORDER BY name"), string(ref))
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return toNodes(rows), nil
}

func childByName(ctx context.Context, q sqlx.QueryerContext, parent NodeRef, name string) (*Node, error) {
	var row dbNode
	err := sqlx.GetContext(ctx, q, &row,
		rebind(q, "SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ? AND name = ?"), string(parent), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNodeNotFound, name, parent)
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return row.toNode(), nil
}

func subtree(ctx context.Context, q sqlx.QueryerContext, ref NodeRef) ([]*Node, error) {
	root, err := getNode(ctx, q, ref)
	if err != nil {
		return nil, err
	}

	out := []*Node{root}
	for i := 0; i < len(out); i++ {
		if !out[i].IsFolder() {
			continue
		}
		kids, err := children(ctx, q, out[i].Ref)
		if err != nil {
			return nil, err
		}
		out = append(out, kids...)
	}
	return out, nil
}

func markers(ctx context.Context, q sqlx.QueryerContext, ref NodeRef) ([]string, error) {
	var out []string
	err := sqlx.SelectContext(ctx, q, &out,
		rebind(q, "SELECT marker FROM node_markers WHERE node_id = ? ORDER BY marker"), string(ref))
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	return out, nil
}

func rebind(q sqlx.QueryerContext, query string) string {
	if b, ok := q.(interface{ Rebind(string) string }); ok {
		return b.Rebind(query)
	}
	return query
}

func toNodes(rows []dbNode) []*Node {
	out := make([]*Node, len(rows))
	for i := range rows {
		out[i] = rows[i].toNode()
	}
	return out
}

// nodeBody carries the file attributes of a new node
type nodeBody struct {
	mimeType   string
	size       int64
	contentKey string
}

// insertNode creates a child of parent, or the root when parent is nil
func (s *Store) insertNode(ctx context.Context, tx *sqlx.Tx, parent *Node, name string, typ NodeType, body nodeBody) (*Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var parentRef, siteRef NodeRef
	if parent != nil {
		if !parent.IsFolder() {
			return nil, fmt.Errorf("%w: %s", ErrNotAFolder, parent.Ref)
		}
		if _, err := childByName(ctx, tx, parent.Ref, name); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrNameExists, name)
		} else if !errors.Is(err, ErrNodeNotFound) {
			return nil, err
		}
		parentRef = parent.Ref
		siteRef = parent.Site
		if parent.Type == TypeSite {
			siteRef = parent.Ref
		}
	}
	if typ == TypeSite {
		siteRef = ""
	}

	now := formatTime(s.now())
	row := dbNode{
		ID:         uuid.NewString(),
		ParentID:   nullable(parentRef),
		SiteID:     nullable(siteRef),
		Name:       name,
		Type:       string(typ),
		MimeType:   body.mimeType,
		Size:       body.size,
		ContentKey: body.contentKey,
		Version:    1,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	_, err := tx.NamedExecContext(ctx, `INSERT INTO nodes (`+nodeColumns+`)
		VALUES (:id, :parent_id, :site_id, :name, :type, :mime_type, :size, :content_key, :version, :created_at, :modified_at)`, &row)
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}
	return row.toNode(), nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
