package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/metastore"
	"github.com/openmined/docsync/internal/pathmap"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/remote/s3remote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/server/auth"
	"github.com/spf13/afero"
)

const triggerQueueSize = 1024

type Services struct {
	Repo     *repo.Store
	Meta     *metastore.Store
	Engine   *engine.Engine
	Triggers *engine.Triggers
	Poller   *engine.Poller
	Accounts *engine.Accounts
	Auth     *auth.AuthService

	pollEnabled bool
}

// ServiceOption overrides collaborators, mostly for tests
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	fs    afero.Fs
	clock clockwork.Clock
	dial  remote.DialFunc
}

func WithFs(fs afero.Fs) ServiceOption {
	return func(o *serviceOptions) { o.fs = fs }
}

func WithClock(clock clockwork.Clock) ServiceOption {
	return func(o *serviceOptions) { o.clock = clock }
}

func WithDial(dial remote.DialFunc) ServiceOption {
	return func(o *serviceOptions) { o.dial = dial }
}

func NewServices(config *Config, db *sqlx.DB, opts ...ServiceOption) (*Services, error) {
	o := &serviceOptions{
		fs:    afero.NewOsFs(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.dial == nil {
		switch config.Remote.Driver {
		case RemoteS3:
			o.dial = s3remote.NewDialer(&config.Remote.S3).Dial
		case RemoteMemory:
			slog.Warn("remote driver is in-memory, remote state is lost on restart")
			o.dial = memremote.New(o.clock).Dial
		default:
			return nil, fmt.Errorf("unknown remote driver %q", config.Remote.Driver)
		}
	}

	store := repo.NewStore(db, o.fs, config.ContentPath())
	meta := metastore.New(db)
	conn := remote.NewConnector(meta, o.dial)

	eng := engine.New(store, meta, pathmap.New(store, config.Repo.ShareHost), conn,
		engine.WithIgnore(engine.NewIgnoreList(config.Poller.Ignore)))

	poller, err := engine.NewPoller(eng, engine.PollerConfig{
		Interval: config.Poller.Interval,
		Sites:    config.Poller.Sites,
		LockPath: config.PollLockPath(),
	}, o.clock)
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	authorizer := remote.NewKeyPairAuthorizer(config.Remote.AuthorizeURL, 0)

	return &Services{
		Repo:        store,
		Meta:        meta,
		Engine:      eng,
		Triggers:    engine.NewTriggers(eng, triggerQueueSize),
		Poller:      poller,
		Accounts:    engine.NewAccounts(meta, authorizer, conn),
		Auth:        auth.NewAuthService(&config.Auth),
		pollEnabled: config.Poller.Enabled,
	}, nil
}

// Start prepares the repository and subscribes the sync triggers to it
func (s *Services) Start(ctx context.Context) error {
	if err := s.Repo.Init(ctx); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	s.Triggers.Attach(s.Repo)
	return nil
}

// RunPoller blocks until ctx is done. It returns at once when polling is disabled.
func (s *Services) RunPoller(ctx context.Context) error {
	if !s.pollEnabled {
		slog.Info("poller disabled")
		return nil
	}
	return s.Poller.Start(ctx)
}

// Shutdown drains queued trigger jobs
func (s *Services) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.Triggers.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain triggers: %w", ctx.Err())
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}
