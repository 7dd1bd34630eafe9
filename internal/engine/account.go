package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/docsync/internal/metastore"
	"github.com/openmined/docsync/internal/remote"
)

// Accounts links and delinks users' remote accounts
type Accounts struct {
	meta *metastore.Store
	auth remote.Authorizer
	conn remote.Connector
}

func NewAccounts(meta *metastore.Store, auth remote.Authorizer, conn remote.Connector) *Accounts {
	return &Accounts{meta: meta, auth: auth, conn: conn}
}

// AuthorizeURL starts the handshake and remembers the request token for Complete
func (a *Accounts) AuthorizeURL(ctx context.Context, user, callbackURL string) (*remote.RequestToken, error) {
	rt, err := a.auth.AuthorizeURL(ctx, user, callbackURL)
	if err != nil {
		return nil, err
	}
	if err := a.meta.PutRequestToken(ctx, user, rt.Token, rt.Secret); err != nil {
		return nil, err
	}
	slog.Info("account authorize", "user", user)
	return rt, nil
}

// Complete exchanges the pending request token and verifier for access credentials
func (a *Accounts) Complete(ctx context.Context, user, verifier string) error {
	creds, err := a.meta.GetCredentials(ctx, user)
	if err != nil {
		return err
	}
	if creds == nil || creds.Complete {
		return metastore.ErrNoPendingAuth
	}

	at, err := a.auth.Exchange(ctx, remote.RequestToken{Token: creds.Token, Secret: creds.Secret}, verifier)
	if err != nil {
		return err
	}
	if err := a.meta.CompleteCredentials(ctx, user, at.Token, at.Secret); err != nil {
		return err
	}
	slog.Info("account linked", "user", user)
	return nil
}

// Profile returns the remote account information of user
func (a *Accounts) Profile(ctx context.Context, user string) (*remote.Profile, error) {
	client, err := a.conn.Connect(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", user, err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLinked, user)
	}
	return client.GetUserProfile(ctx)
}

// Linked reports whether user has completed credentials
func (a *Accounts) Linked(ctx context.Context, user string) (bool, error) {
	creds, err := a.meta.LoadCredentials(ctx, user)
	if err != nil {
		return false, err
	}
	return creds != nil, nil
}

// Delink forgets every sync link of user and then the credentials. Remote data is left alone.
func (a *Accounts) Delink(ctx context.Context, user string) (int, error) {
	dropped, err := a.meta.DeleteAllForUser(ctx, metastore.Elevate(), user)
	if err != nil {
		return 0, err
	}
	if err := a.meta.DeleteCredentials(ctx, user); err != nil {
		return dropped, err
	}
	slog.Info("account delinked", "user", user, "links", dropped)
	return dropped, nil
}
