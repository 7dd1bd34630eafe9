package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkedDoc(t *testing.T, f *fixture, user string) *repo.Node {
	t.Helper()
	doc := f.file(t, f.lib.Ref, "a.txt", "a")
	require.NoError(t, f.engine.Link(context.Background(), user, []repo.NodeRef{doc.Ref}))
	f.remote.ResetCalls(user)
	return doc
}

func TestNewPoller_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewPoller(f.engine, PollerConfig{LockPath: "x.lock", Sites: []string{"[eng"}}, f.clock)
	assert.Error(t, err)

	_, err = NewPoller(f.engine, PollerConfig{}, f.clock)
	assert.Error(t, err)

	p, err := NewPoller(f.engine, PollerConfig{LockPath: "x.lock"}, f.clock)
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, p.config.Interval)
}

func TestPoller_LockHeldElsewhere(t *testing.T) {
	f := newFixture(t, "alice")
	linkedDoc(t, f, "alice")

	lockPath := filepath.Join(t.TempDir(), "poll.lock")
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	p, err := NewPoller(f.engine, PollerConfig{LockPath: lockPath}, f.clock)
	require.NoError(t, err)
	assert.ErrorIs(t, p.RunOnce(context.Background()), ErrPollAlreadyRunning)
	assert.Empty(t, f.remote.Calls("alice"))
}

func TestPoller_SkipsSiteMidSync(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	linkedDoc(t, f, "alice")
	p := f.poller(t)

	// the first pass clears flags left by earlier processes
	require.NoError(t, p.RunOnce(ctx))
	f.remote.ResetCalls("alice")

	ok, err := f.meta.TryBeginSync(ctx, f.site.Ref)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, p.RunOnce(ctx))
	assert.Empty(t, f.remote.Calls("alice"))

	require.NoError(t, f.meta.EndSync(ctx, f.site.Ref))
	require.NoError(t, p.RunOnce(ctx))
	assert.Equal(t, []string{"getMetadata " + sitePath + "/a.txt"}, f.ops("alice"))
}

func TestPoller_ReleasesFlagWhenPullFails(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	linkedDoc(t, f, "alice")
	p := f.poller(t)

	require.NoError(t, p.RunOnce(ctx))
	f.remote.ResetCalls("alice")

	f.remote.FailNext("alice", memremote.OpGetMetadata, remote.ErrUnavailable)
	err := p.RunOnce(ctx)
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	syncing, err := f.meta.IsSyncing(ctx, f.site.Ref)
	require.NoError(t, err)
	assert.False(t, syncing)

	// the failed pass does not block the next one
	f.remote.ResetCalls("alice")
	require.NoError(t, p.RunOnce(ctx))
	assert.Equal(t, []string{"getMetadata " + sitePath + "/a.txt"}, f.ops("alice"))
}

func TestPoller_ClearsStaleFlagsOnFirstPass(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	linkedDoc(t, f, "alice")

	// left behind by a crashed process
	ok, err := f.meta.TryBeginSync(ctx, f.site.Ref)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.poller(t).RunOnce(ctx))
	assert.Equal(t, []string{"getMetadata " + sitePath + "/a.txt"}, f.ops("alice"))

	syncing, err := f.meta.IsSyncing(ctx, f.site.Ref)
	require.NoError(t, err)
	assert.False(t, syncing)
}

func TestPoller_SitePatterns(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	linkedDoc(t, f, "alice")

	p, err := NewPoller(f.engine, PollerConfig{
		LockPath: filepath.Join(t.TempDir(), "poll.lock"),
		Sites:    []string{"marketing-*"},
	}, f.clock)
	require.NoError(t, err)
	require.NoError(t, p.RunOnce(ctx))
	assert.Empty(t, f.remote.Calls("alice"))

	assert.True(t, p.matchSite("marketing-emea"))
	assert.False(t, p.matchSite("eng"))
}

func TestPoller_StartRunsOnInterval(t *testing.T) {
	f := newFixture(t, "alice")
	linkedDoc(t, f, "alice")

	p, err := NewPoller(f.engine, PollerConfig{
		Interval: time.Minute,
		LockPath: filepath.Join(t.TempDir(), "poll.lock"),
	}, f.clock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, f.remote.Calls("alice"))

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		for _, c := range f.remote.Calls("alice") {
			if c.Op == memremote.OpGetMetadata {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
