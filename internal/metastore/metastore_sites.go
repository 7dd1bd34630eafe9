package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/repo"
)

// SiteStatus is the persisted sync flag of a site
type SiteStatus struct {
	Site     repo.NodeRef
	Syncing  bool
	LastSync time.Time
}

type dbSiteStatus struct {
	SiteID   string `db:"site_id"`
	Syncing  int    `db:"syncing"`
	LastSync string `db:"last_sync"`
}

// MakeSyncable registers site with the poller. It is a no-op for known sites.
func (s *Store) MakeSyncable(ctx context.Context, site repo.NodeRef) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			tx.Rebind("INSERT INTO site_sync_status (site_id, syncing, last_sync) VALUES (?, 0, '') ON CONFLICT DO NOTHING"),
			string(site))
		if err != nil {
			return fmt.Errorf("make site syncable: %w", err)
		}
		return nil
	})
}

// TryBeginSync atomically flips the site flag from idle to syncing.
// It returns false when another pass holds the flag or the site is not syncable.
func (s *Store) TryBeginSync(ctx context.Context, site repo.NodeRef) (bool, error) {
	var acquired bool
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE site_sync_status SET syncing = 1 WHERE site_id = ? AND syncing = 0"), string(site))
		if err != nil {
			return fmt.Errorf("begin site sync: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		acquired = n == 1
		return nil
	})
	return acquired, err
}

// EndSync releases the site flag and stamps the sync time
func (s *Store) EndSync(ctx context.Context, site repo.NodeRef) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind("UPDATE site_sync_status SET syncing = 0, last_sync = ? WHERE site_id = ?"),
			formatTime(s.now()), string(site))
		if err != nil {
			return fmt.Errorf("end site sync: %w", err)
		}
		return nil
	})
}

func (s *Store) IsSyncing(ctx context.Context, site repo.NodeRef) (bool, error) {
	st, err := s.Status(ctx, site)
	if err != nil || st == nil {
		return false, err
	}
	return st.Syncing, nil
}

// Status returns the site flag, or nil when the site was never made syncable
func (s *Store) Status(ctx context.Context, site repo.NodeRef) (*SiteStatus, error) {
	var row dbSiteStatus
	err := sqlx.GetContext(ctx, s.db, &row,
		s.db.Rebind("SELECT site_id, syncing, last_sync FROM site_sync_status WHERE site_id = ?"), string(site))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site status: %w", err)
	}
	return &SiteStatus{
		Site:     repo.NodeRef(row.SiteID),
		Syncing:  row.Syncing != 0,
		LastSync: parseTime(row.LastSync),
	}, nil
}

// SyncableSites lists every site registered with the poller
func (s *Store) SyncableSites(ctx context.Context) ([]repo.NodeRef, error) {
	var refs []repo.NodeRef
	if err := sqlx.SelectContext(ctx, s.db, &refs, "SELECT site_id FROM site_sync_status ORDER BY site_id"); err != nil {
		return nil, fmt.Errorf("list syncable sites: %w", err)
	}
	return refs, nil
}

// ResetSyncFlags clears flags left behind by a crashed pass. Call it only while holding the poll lock.
func (s *Store) ResetSyncFlags(ctx context.Context) (int64, error) {
	var cleared int64
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE site_sync_status SET syncing = 0 WHERE syncing = 1")
		if err != nil {
			return fmt.Errorf("reset sync flags: %w", err)
		}
		cleared, err = res.RowsAffected()
		return err
	})
	return cleared, err
}
