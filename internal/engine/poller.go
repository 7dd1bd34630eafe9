package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/repo"
)

const defaultPollInterval = 5 * time.Minute

var ErrPollAlreadyRunning = errors.New("poll already running")

type PollerConfig struct {
	Interval time.Duration
	// Sites are doublestar patterns on site names. Empty means every site.
	Sites []string
	// LockPath is the file lock shared by all processes polling the same database
	LockPath string
}

// Poller pulls remote changes for every syncable site on a timer
type Poller struct {
	engine *Engine
	clock  clockwork.Clock
	config PollerConfig
	flock  *flock.Flock

	mu         sync.Mutex
	flagsReset bool
}

func NewPoller(engine *Engine, cfg PollerConfig, clock clockwork.Clock) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	for _, pattern := range cfg.Sites {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid site pattern %q", pattern)
		}
	}
	if cfg.LockPath == "" {
		return nil, fmt.Errorf("poll lock path required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Poller{
		engine: engine,
		clock:  clock,
		config: cfg,
		flock:  flock.New(cfg.LockPath),
	}, nil
}

// Start runs a pass every interval until ctx is done
func (p *Poller) Start(ctx context.Context) error {
	slog.Info("poller start", "interval", p.config.Interval, "sites", p.config.Sites)

	// a timer instead of a ticker so a slow pass never queues up another one
	timer := p.clock.NewTimer(p.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stop")
			return nil
		case <-timer.Chan():
			err := p.RunOnce(ctx)
			switch {
			case errors.Is(err, ErrPollAlreadyRunning):
				slog.Debug("poll skipped, pass in progress")
			case err != nil && !errors.Is(err, context.Canceled):
				slog.Error("poll pass", "error", err)
			}
			timer.Reset(p.config.Interval)
		}
	}
}

// RunOnce runs a single poll pass over every syncable site
func (p *Poller) RunOnce(ctx context.Context) error {
	if !p.mu.TryLock() {
		return ErrPollAlreadyRunning
	}
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.config.LockPath), 0o755); err != nil {
		return fmt.Errorf("poll lock dir: %w", err)
	}
	locked, err := p.flock.TryLock()
	if err != nil {
		return fmt.Errorf("poll lock: %w", err)
	}
	if !locked {
		return ErrPollAlreadyRunning
	}
	defer func() {
		if err := p.flock.Unlock(); err != nil {
			slog.Warn("poll unlock", "error", err)
		}
	}()

	// flags left by a crashed process can only be cleared while holding the lock
	if !p.flagsReset {
		cleared, err := p.engine.meta.ResetSyncFlags(ctx)
		if err != nil {
			return err
		}
		if cleared > 0 {
			slog.Warn("cleared stale site sync flags", "count", cleared)
		}
		p.flagsReset = true
	}

	start := p.clock.Now()
	sites, err := p.engine.meta.SyncableSites(ctx)
	if err != nil {
		return err
	}

	var errs []error
	synced := 0
	for _, ref := range sites {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		site, err := p.engine.repo.Get(ctx, ref)
		if errors.Is(err, repo.ErrNodeNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !p.matchSite(site.Name) {
			continue
		}

		ran, err := p.syncSite(ctx, site)
		if err != nil {
			errs = append(errs, fmt.Errorf("site %s: %w", site.Name, err))
		}
		if ran {
			synced++
		}
	}

	slog.Info("poll pass", "sites", synced, "errors", len(errs), "took", p.clock.Since(start))
	return errors.Join(errs...)
}

// syncSite pulls one site for all of its linked users while holding the site flag
func (p *Poller) syncSite(ctx context.Context, site *repo.Node) (bool, error) {
	meta := p.engine.meta

	ok, err := meta.TryBeginSync(ctx, site.Ref)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Info("site already syncing, skipped", "site", site.Name)
		return false, nil
	}
	defer func() {
		if err := meta.EndSync(context.WithoutCancel(ctx), site.Ref); err != nil {
			slog.Error("release site sync flag", "site", site.Name, "error", err)
		}
	}()

	users, err := meta.LinkedUsersUnder(ctx, site.Ref)
	if err != nil {
		return true, err
	}

	var errs []error
	for _, user := range users {
		if err := p.engine.PullSite(ctx, site.Ref, user); err != nil {
			slog.Warn("pull site", "site", site.Name, "user", user, "error", err)
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

func (p *Poller) matchSite(name string) bool {
	if len(p.config.Sites) == 0 {
		return true
	}
	for _, pattern := range p.config.Sites {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
