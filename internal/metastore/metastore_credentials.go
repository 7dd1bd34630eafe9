package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/remote"
)

var ErrNoPendingAuth = errors.New("no pending authorization")

// Credentials is the stored token pair of a user. Until Complete is set it holds the request token.
type Credentials struct {
	User     string
	Token    string
	Secret   string
	Complete bool
	Created  time.Time
	Updated  time.Time
}

type dbCredentials struct {
	UserID    string `db:"user_id"`
	Token     string `db:"token"`
	Secret    string `db:"secret"`
	Complete  int    `db:"complete"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// GetCredentials returns the stored credentials of user, or nil
func (s *Store) GetCredentials(ctx context.Context, user string) (*Credentials, error) {
	return getCredentials(ctx, s.db, user)
}

func getCredentials(ctx context.Context, q sqlx.ExtContext, user string) (*Credentials, error) {
	var row dbCredentials
	err := sqlx.GetContext(ctx, q, &row,
		q.Rebind("SELECT user_id, token, secret, complete, created_at, updated_at FROM credentials WHERE user_id = ?"), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return &Credentials{
		User:     row.UserID,
		Token:    row.Token,
		Secret:   row.Secret,
		Complete: row.Complete != 0,
		Created:  parseTime(row.CreatedAt),
		Updated:  parseTime(row.UpdatedAt),
	}, nil
}

// PutRequestToken starts a new handshake for user, replacing anything stored before
func (s *Store) PutRequestToken(ctx context.Context, user, token, secret string) error {
	now := formatTime(s.now())
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO credentials (user_id, token, secret, complete, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET token = excluded.token, secret = excluded.secret, complete = 0, updated_at = excluded.updated_at`),
			user, token, secret, now, now)
		if err != nil {
			return fmt.Errorf("put request token: %w", err)
		}
		return nil
	})
}

// CompleteCredentials swaps the pending request token for the access pair
func (s *Store) CompleteCredentials(ctx context.Context, user, token, secret string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE credentials SET token = ?, secret = ?, complete = 1, updated_at = ? WHERE user_id = ?"),
			token, secret, formatTime(s.now()), user)
		if err != nil {
			return fmt.Errorf("complete credentials: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNoPendingAuth
		}
		return nil
	})
}

func (s *Store) DeleteCredentials(ctx context.Context, user string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM credentials WHERE user_id = ?"), user); err != nil {
			return fmt.Errorf("delete credentials: %w", err)
		}
		return nil
	})
}

// LoadCredentials returns the completed key pair of user for dialing the remote
func (s *Store) LoadCredentials(ctx context.Context, user string) (*remote.Credentials, error) {
	creds, err := s.GetCredentials(ctx, user)
	if err != nil || creds == nil || !creds.Complete {
		return nil, err
	}
	return &remote.Credentials{Token: creds.Token, Secret: creds.Secret}, nil
}
