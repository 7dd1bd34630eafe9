package remote

import (
	"context"
	"path"
	"time"
)

// Entry describes one remote path. Children is only filled for folder listings.
type Entry struct {
	Path     string    `json:"path"`
	IsDir    bool      `json:"isDir"`
	Deleted  bool      `json:"deleted,omitempty"`
	Rev      string    `json:"rev"`
	Hash     string    `json:"hash,omitempty"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mimeType,omitempty"`
	Modified time.Time `json:"modified"`
	Children []*Entry  `json:"children,omitempty"`
}

// Name is the last element of the entry path
func (e *Entry) Name() string {
	return path.Base(e.Path)
}

// File is a downloaded remote file
type File struct {
	Data        []byte
	ContentType string
	Entry       *Entry
}

// Profile is the account information of the remote user
type Profile struct {
	User        string `json:"user"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	QuotaBytes  int64  `json:"quotaBytes"`
	UsedBytes   int64  `json:"usedBytes"`
}

// Client is a connection to one user's remote account.
// Paths are absolute and slash separated.
type Client interface {
	// GetMetadata describes path. For folders, a priorHash equal to the current hash yields ErrNotModified.
	GetMetadata(ctx context.Context, path string, priorHash string) (*Entry, error)

	// PutFile uploads data. With overwrite=false an existing path yields ErrConflict.
	PutFile(ctx context.Context, path string, data []byte, overwrite bool) (*Entry, error)

	// CreateFolder creates a folder. An existing path yields ErrConflict.
	CreateFolder(ctx context.Context, path string) (*Entry, error)

	Move(ctx context.Context, from, to string) (*Entry, error)
	Copy(ctx context.Context, from, to string) (*Entry, error)
	Delete(ctx context.Context, path string) error
	GetFile(ctx context.Context, path string) (*File, error)
	GetUserProfile(ctx context.Context) (*Profile, error)
}

// Credentials is a completed access key pair
type Credentials struct {
	Token  string
	Secret string
}

// CredentialStore loads the completed credentials of a user, nil when there are none
type CredentialStore interface {
	LoadCredentials(ctx context.Context, user string) (*Credentials, error)
}

// DialFunc opens a Client for user with the given credentials
type DialFunc func(ctx context.Context, user string, creds Credentials) (Client, error)

// Connector hands out a fresh Client per logical operation
type Connector interface {
	// Connect returns nil, nil when the user has no completed credentials
	Connect(ctx context.Context, user string) (Client, error)
}

// CredentialConnector dials clients from stored credentials
type CredentialConnector struct {
	store CredentialStore
	dial  DialFunc
}

func NewConnector(store CredentialStore, dial DialFunc) *CredentialConnector {
	return &CredentialConnector{store: store, dial: dial}
}

func (c *CredentialConnector) Connect(ctx context.Context, user string) (Client, error) {
	creds, err := c.store.LoadCredentials(ctx, user)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, nil
	}
	return c.dial(ctx, user, *creds)
}
