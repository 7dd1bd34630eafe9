package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/repo"
)

// LinkRef identifies a single SyncLink row
type LinkRef string

// SyncLink is the per-(node, user) sync record. Its presence means the node is synced for that user.
type SyncLink struct {
	ID        LinkRef
	Node      repo.NodeRef
	User      string
	Rev       string
	Hash      string
	Modified  time.Time
	UpdatedAt time.Time

	// LocalVersion is the node version that was last pushed or pulled
	LocalVersion int64
}

// Fields are the remote attributes persisted after a successful remote operation
type Fields struct {
	Rev          string
	Hash         string
	Modified     time.Time
	IsDir        bool
	LocalVersion int64
}

// Elevated is the capability required to drop the protected synced marker
type Elevated struct {
	who repo.Identity
}

// Elevate returns the administrative capability
func Elevate() Elevated {
	return Elevated{who: repo.Admin}
}

type dbLink struct {
	ID           string `db:"id"`
	NodeID       string `db:"node_id"`
	UserID       string `db:"user_id"`
	Rev          string `db:"rev"`
	Hash         string `db:"hash"`
	ModifiedAt   string `db:"modified_at"`
	LocalVersion int64  `db:"local_version"`
	UpdatedAt    string `db:"updated_at"`
}

func (d *dbLink) toLink() *SyncLink {
	return &SyncLink{
		ID:           LinkRef(d.ID),
		Node:         repo.NodeRef(d.NodeID),
		User:         d.UserID,
		Rev:          d.Rev,
		Hash:         d.Hash,
		Modified:     parseTime(d.ModifiedAt),
		UpdatedAt:    parseTime(d.UpdatedAt),
		LocalVersion: d.LocalVersion,
	}
}

// Store persists SyncLinks, SiteSyncStatus flags and remote Credentials
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(database *sqlx.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Get returns the link for (node, user), or nil when there is none
func (s *Store) Get(ctx context.Context, node repo.NodeRef, user string) (*SyncLink, error) {
	return getLink(ctx, s.db, node, user)
}

func getLink(ctx context.Context, q sqlx.ExtContext, node repo.NodeRef, user string) (*SyncLink, error) {
	var row dbLink
	err := sqlx.GetContext(ctx, q, &row,
		q.Rebind("SELECT id, node_id, user_id, rev, hash, modified_at, local_version, updated_at FROM sync_links WHERE node_id = ? AND user_id = ?"),
		string(node), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return row.toLink(), nil
}

// Put records the result of a remote operation for (node, user).
// The hash is kept for folders only and rewritten only when it changed.
func (s *Store) Put(ctx context.Context, node repo.NodeRef, user string, f Fields) error {
	now := formatTime(s.now())
	modified := formatTime(f.Modified)

	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		existing, err := getLink(ctx, tx, node, user)
		if err != nil {
			return err
		}

		if existing == nil {
			hash := ""
			if f.IsDir {
				hash = f.Hash
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO sync_links (id, node_id, user_id, rev, hash, modified_at, local_version, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`), uuid.NewString(), string(node), user, f.Rev, hash, modified, f.LocalVersion, now)
			if err != nil {
				return fmt.Errorf("insert link: %w", err)
			}
			// first link marks the node as synced
			return repo.AddMarkerTx(ctx, tx, node, repo.MarkerSynced)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE sync_links SET rev = ?, modified_at = ?, local_version = ?, updated_at = ? WHERE id = ?"),
			f.Rev, modified, f.LocalVersion, now, string(existing.ID))
		if err != nil {
			return fmt.Errorf("update link: %w", err)
		}
		if f.IsDir && f.Hash != existing.Hash {
			_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE sync_links SET hash = ? WHERE id = ?"), f.Hash, string(existing.ID))
			if err != nil {
				return fmt.Errorf("update link hash: %w", err)
			}
		}
		return nil
	})
}

// Delete removes the (node, user) link and drops the synced marker once no link remains.
// It reports whether a link existed.
func (s *Store) Delete(ctx context.Context, el Elevated, node repo.NodeRef, user string) (bool, error) {
	var deleted bool
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sync_links WHERE node_id = ? AND user_id = ?"), string(node), user)
		if err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		if !deleted {
			return nil
		}
		return dropMarkerIfUnlinked(ctx, tx, el, node)
	})
	return deleted, err
}

func dropMarkerIfUnlinked(ctx context.Context, tx *sqlx.Tx, el Elevated, node repo.NodeRef) error {
	remaining, err := countLinks(ctx, tx, node)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return repo.RemoveMarkerTx(ctx, tx, el.who, node, repo.MarkerSynced)
}

// DeleteAllForUser removes every link of user, fixing up markers of nodes left unlinked
func (s *Store) DeleteAllForUser(ctx context.Context, el Elevated, user string) (int, error) {
	var count int
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var nodes []string
		err := sqlx.SelectContext(ctx, tx, &nodes, tx.Rebind("SELECT node_id FROM sync_links WHERE user_id = ?"), user)
		if err != nil {
			return fmt.Errorf("list user links: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sync_links WHERE user_id = ?"), user); err != nil {
			return fmt.Errorf("delete user links: %w", err)
		}
		for _, node := range nodes {
			if err := dropMarkerIfUnlinked(ctx, tx, el, repo.NodeRef(node)); err != nil {
				return err
			}
		}
		count = len(nodes)
		return nil
	})
	return count, err
}

// DeleteAllForNode removes every link on node along with its synced marker
func (s *Store) DeleteAllForNode(ctx context.Context, el Elevated, node repo.NodeRef) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sync_links WHERE node_id = ?"), string(node)); err != nil {
			return fmt.Errorf("delete node links: %w", err)
		}
		return repo.RemoveMarkerTx(ctx, tx, el.who, node, repo.MarkerSynced)
	})
}

// ListLinkedUsers maps each user linked on node to the link id
func (s *Store) ListLinkedUsers(ctx context.Context, node repo.NodeRef) (map[string]LinkRef, error) {
	var rows []dbLink
	err := sqlx.SelectContext(ctx, s.db, &rows,
		s.db.Rebind("SELECT id, node_id, user_id, rev, hash, modified_at, local_version, updated_at FROM sync_links WHERE node_id = ?"), string(node))
	if err != nil {
		return nil, fmt.Errorf("list linked users: %w", err)
	}

	users := make(map[string]LinkRef, len(rows))
	for _, row := range rows {
		users[row.UserID] = LinkRef(row.ID)
	}
	return users, nil
}

func (s *Store) CountLinks(ctx context.Context, node repo.NodeRef) (int, error) {
	return countLinks(ctx, s.db, node)
}

func countLinks(ctx context.Context, q sqlx.ExtContext, node repo.NodeRef) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind("SELECT COUNT(*) FROM sync_links WHERE node_id = ?"), string(node)); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// LinkedNodes lists the nodes of a site that user has linked
func (s *Store) LinkedNodes(ctx context.Context, site repo.NodeRef, user string) ([]repo.NodeRef, error) {
	var refs []repo.NodeRef
	err := sqlx.SelectContext(ctx, s.db, &refs, s.db.Rebind(`SELECT l.node_id FROM sync_links l
		JOIN nodes n ON n.id = l.node_id
		WHERE n.site_id = ? AND l.user_id = ?
		ORDER BY n.name`), string(site), user)
	if err != nil {
		return nil, fmt.Errorf("list linked nodes: %w", err)
	}
	return refs, nil
}

// LinkedUsersUnder lists the distinct users with at least one link inside site
func (s *Store) LinkedUsersUnder(ctx context.Context, site repo.NodeRef) ([]string, error) {
	var users []string
	err := sqlx.SelectContext(ctx, s.db, &users, s.db.Rebind(`SELECT DISTINCT l.user_id FROM sync_links l
		JOIN nodes n ON n.id = l.node_id
		WHERE n.site_id = ?
		ORDER BY l.user_id`), string(site))
	if err != nil {
		return nil, fmt.Errorf("list site users: %w", err)
	}
	return users, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
