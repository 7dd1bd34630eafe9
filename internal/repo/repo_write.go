package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
)

// CreateSite creates a site under /Company Home/Sites along with its document library
func (s *Store) CreateSite(ctx context.Context, name string) (*Node, error) {
	folder, err := s.sitesFolder(ctx)
	if err != nil {
		return nil, err
	}

	var site *Node
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		site, err = s.insertNode(ctx, tx, folder, name, TypeSite, nodeBody{})
		if err != nil {
			return err
		}
		_, err = s.insertNode(ctx, tx, site, LibraryName, TypeFolder, nodeBody{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create site %s: %w", name, err)
	}

	slog.Info("site created", "site", name, "ref", site.Ref)
	s.dispatch(ctx, []Event{{Kind: EventChildCreated, Node: site.Ref, Parent: folder.Ref}})
	return site, nil
}

// CreateNode creates an empty folder or file under parent
func (s *Store) CreateNode(ctx context.Context, parent NodeRef, name string, typ NodeType) (*Node, error) {
	if typ == TypeSite {
		return nil, fmt.Errorf("%w: use CreateSite", ErrInvalidName)
	}

	var node *Node
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		p, err := getNode(ctx, tx, parent)
		if err != nil {
			return err
		}
		node, err = s.insertNode(ctx, tx, p, name, typ, nodeBody{})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, []Event{{Kind: EventChildCreated, Node: node.Ref, Parent: parent}})
	return node, nil
}

// CreateFile creates a file with content under parent. Listeners see a single child-created event.
func (s *Store) CreateFile(ctx context.Context, parent NodeRef, name string, data []byte, mimeType string) (*Node, error) {
	key, err := s.blobs.put(data)
	if err != nil {
		return nil, err
	}

	var node *Node
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		p, err := getNode(ctx, tx, parent)
		if err != nil {
			return err
		}
		node, err = s.insertNode(ctx, tx, p, name, TypeContent, nodeBody{
			mimeType:   mimeType,
			size:       int64(len(data)),
			contentKey: key,
		})
		return err
	})
	if err != nil {
		s.blobs.remove(key)
		return nil, err
	}

	s.dispatch(ctx, []Event{
		{Kind: EventChildCreated, Node: node.Ref, Parent: parent},
		{Kind: EventContentUpdated, Node: node.Ref},
	})
	return node, nil
}

// ReadContent returns the body and mime type of a file
func (s *Store) ReadContent(ctx context.Context, ref NodeRef) ([]byte, string, error) {
	n, err := s.Get(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if !n.IsContent() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotAFile, ref)
	}
	data, err := s.blobs.get(n.contentKey)
	if err != nil {
		return nil, "", err
	}
	return data, n.MimeType, nil
}

// WriteContent replaces the body of a file and bumps its version
func (s *Store) WriteContent(ctx context.Context, ref NodeRef, data []byte, mimeType string) (*Node, error) {
	key, err := s.blobs.put(data)
	if err != nil {
		return nil, err
	}

	var (
		node   *Node
		oldKey string
	)
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		n, err := getNode(ctx, tx, ref)
		if err != nil {
			return err
		}
		if !n.IsContent() {
			return fmt.Errorf("%w: %s", ErrNotAFile, ref)
		}
		if mimeType == "" {
			mimeType = n.MimeType
		}
		oldKey = n.contentKey

		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE nodes
			SET content_key = ?, size = ?, mime_type = ?, version = version + 1, modified_at = ?
			WHERE id = ?`), key, len(data), mimeType, formatTime(s.now()), string(ref))
		if err != nil {
			return fmt.Errorf("update content: %w", err)
		}
		node, err = getNode(ctx, tx, ref)
		return err
	})
	if err != nil {
		s.blobs.remove(key)
		return nil, err
	}
	s.blobs.remove(oldKey)

	s.dispatch(ctx, []Event{{Kind: EventContentUpdated, Node: ref}})
	return node, nil
}

// Move reparents and optionally renames ref. An empty newName keeps the current name.
func (s *Store) Move(ctx context.Context, ref, newParent NodeRef, newName string) (*Node, error) {
	oldPath, err := s.Path(ctx, ref)
	if err != nil {
		return nil, err
	}

	var node *Node
	var oldParent NodeRef
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		n, err := getNode(ctx, tx, ref)
		if err != nil {
			return err
		}
		if n.Type == TypeSite || n.Parent == "" {
			return fmt.Errorf("%w: %s cannot be moved", ErrInvalidMove, n.Name)
		}
		p, err := getNode(ctx, tx, newParent)
		if err != nil {
			return err
		}
		if !p.IsFolder() {
			return fmt.Errorf("%w: %s", ErrNotAFolder, newParent)
		}
		if err := ensureNotDescendant(ctx, tx, ref, p); err != nil {
			return err
		}

		name := newName
		if name == "" {
			name = n.Name
		}
		if err := validateName(name); err != nil {
			return err
		}
		if existing, err := childByName(ctx, tx, p.Ref, name); err == nil && existing.Ref != ref {
			return fmt.Errorf("%w: %s", ErrNameExists, name)
		}

		oldParent = n.Parent
		_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE nodes SET parent_id = ?, name = ?, modified_at = ? WHERE id = ?"),
			string(p.Ref), name, formatTime(s.now()), string(ref))
		if err != nil {
			return fmt.Errorf("move node: %w", err)
		}

		site := p.Site
		if p.Type == TypeSite {
			site = p.Ref
		}
		if err := setSubtreeSite(ctx, tx, ref, site); err != nil {
			return err
		}

		node, err = getNode(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, []Event{{Kind: EventMoved, Node: ref, Parent: newParent, OldParent: oldParent, OldPath: oldPath}})
	return node, nil
}

// ensureNotDescendant rejects moving ref underneath itself
func ensureNotDescendant(ctx context.Context, tx *sqlx.Tx, ref NodeRef, target *Node) error {
	cur := target
	for depth := 0; ; depth++ {
		if cur.Ref == ref {
			return fmt.Errorf("%w: cannot move a folder into itself", ErrInvalidMove)
		}
		if cur.Parent == "" || depth > maxDepth {
			return nil
		}
		next, err := getNode(ctx, tx, cur.Parent)
		if err != nil {
			return err
		}
		cur = next
	}
}

func setSubtreeSite(ctx context.Context, tx *sqlx.Tx, ref NodeRef, site NodeRef) error {
	nodes, err := subtree(ctx, tx, ref)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE nodes SET site_id = ? WHERE id = ?"), nullable(site), string(n.Ref)); err != nil {
			return fmt.Errorf("update site: %w", err)
		}
	}
	return nil
}

// Copy deep-copies ref with its content and markers into newParent
func (s *Store) Copy(ctx context.Context, ref, newParent NodeRef) (*Node, error) {
	var (
		top     *Node
		written []string
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		// a retried transaction starts from scratch
		s.blobs.remove(written...)
		written = written[:0]
		top = nil

		dst, err := getNode(ctx, tx, newParent)
		if err != nil {
			return err
		}
		src, err := getNode(ctx, tx, ref)
		if err != nil {
			return err
		}
		if src.Type == TypeSite {
			return fmt.Errorf("%w: sites cannot be copied", ErrInvalidMove)
		}
		if src.IsFolder() {
			if err := ensureNotDescendant(ctx, tx, ref, dst); err != nil {
				return err
			}
		}

		type frame struct {
			src *Node
			dst *Node
		}
		work := []frame{{src: src, dst: dst}}
		for len(work) > 0 {
			f := work[len(work)-1]
			work = work[:len(work)-1]

			body := nodeBody{mimeType: f.src.MimeType, size: f.src.Size}
			if f.src.IsContent() && f.src.contentKey != "" {
				data, err := s.blobs.get(f.src.contentKey)
				if err != nil {
					return err
				}
				if body.contentKey, err = s.blobs.put(data); err != nil {
					return err
				}
				written = append(written, body.contentKey)
			}

			created, err := s.insertNode(ctx, tx, f.dst, f.src.Name, f.src.Type, body)
			if err != nil {
				return err
			}
			if top == nil {
				top = created
			}

			marks, err := markers(ctx, tx, f.src.Ref)
			if err != nil {
				return err
			}
			for _, m := range marks {
				if err := AddMarkerTx(ctx, tx, created.Ref, m); err != nil {
					return err
				}
			}

			if f.src.IsFolder() {
				kids, err := children(ctx, tx, f.src.Ref)
				if err != nil {
					return err
				}
				for _, k := range kids {
					work = append(work, frame{src: k, dst: created})
				}
			}
		}
		return nil
	})
	if err != nil {
		s.blobs.remove(written...)
		return nil, err
	}

	s.dispatch(ctx, []Event{
		{Kind: EventCopied, Node: top.Ref, Source: ref, Parent: newParent},
		{Kind: EventChildCreated, Node: top.Ref, Parent: newParent},
	})
	return top, nil
}

// Delete removes ref and its subtree. Delete-aware listeners are consulted before the rows go away.
func (s *Store) Delete(ctx context.Context, ref NodeRef) error {
	node, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if node.Parent == "" {
		return fmt.Errorf("%w: the root cannot be deleted", ErrAccessDenied)
	}
	path, err := s.Path(ctx, ref)
	if err != nil {
		return err
	}

	after := s.prepareDelete(ctx, Event{Kind: EventBeforeDelete, Node: ref, Parent: node.Parent, OldPath: path})

	var keys []string
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		nodes, err := subtree(ctx, tx, ref)
		if err != nil {
			return err
		}
		keys = keys[:0]
		// children first so the delete does not lean on recursive cascades
		for i := len(nodes) - 1; i >= 0; i-- {
			keys = append(keys, nodes[i].contentKey)
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM nodes WHERE id = ?"), string(nodes[i].Ref)); err != nil {
				return fmt.Errorf("delete node: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.blobs.remove(keys...)

	dctx := context.WithoutCancel(ctx)
	for _, fn := range after {
		fn(dctx)
	}
	return nil
}
