package engine

import (
	"context"
	"testing"

	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_RegistersSite(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	projects := f.folder(t, f.lib.Ref, "Projects")

	require.NoError(t, f.engine.Link(ctx, "alice", []repo.NodeRef{projects.Ref}))

	sites, err := f.meta.SyncableSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repo.NodeRef{f.site.Ref}, sites)
	assert.NotNil(t, f.remote.Entry("alice", sitePath+"/Projects"))
}

func TestLink_PartialFailureRegistersSite(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	projects := f.folder(t, f.lib.Ref, "Projects")
	a := f.file(t, projects.Ref, "a.txt", "a")
	b := f.file(t, projects.Ref, "b.txt", "b")
	f.remote.FailNext("alice", memremote.OpPutFile, remote.ErrUnavailable)

	err := f.engine.Link(ctx, "alice", []repo.NodeRef{projects.Ref})
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	assert.NotNil(t, f.link(t, projects.Ref, "alice"))
	assert.Nil(t, f.link(t, a.Ref, "alice"))
	assert.NotNil(t, f.link(t, b.Ref, "alice"))

	sites, err := f.meta.SyncableSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repo.NodeRef{f.site.Ref}, sites)
}

func TestLink_RejectsSiteNode(t *testing.T) {
	f := newFixture(t, "alice")
	err := f.engine.Link(context.Background(), "alice", []repo.NodeRef{f.site.Ref})
	assert.ErrorIs(t, err, repo.ErrNotASite)
	assert.Empty(t, f.remote.Calls("alice"))
}

func TestUnlink_MarkerFollowsLastLink(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	projects := f.folder(t, f.lib.Ref, "Projects")
	a := f.file(t, projects.Ref, "a.txt", "a")
	refs := []repo.NodeRef{projects.Ref}
	require.NoError(t, f.engine.Link(ctx, "alice", refs))
	require.NoError(t, f.engine.Link(ctx, "bob", refs))
	bobLink := f.link(t, a.Ref, "bob")

	synced := func(ref repo.NodeRef) bool {
		ok, err := f.repo.HasMarker(ctx, ref, repo.MarkerSynced)
		require.NoError(t, err)
		return ok
	}

	// one user remains
	require.NoError(t, f.engine.Unlink(ctx, "alice", refs))
	assert.Nil(t, f.remote.Entry("alice", sitePath+"/Projects"))
	assert.Nil(t, f.link(t, projects.Ref, "alice"))
	assert.Nil(t, f.link(t, a.Ref, "alice"))
	assert.True(t, synced(projects.Ref))
	assert.True(t, synced(a.Ref))
	assert.Equal(t, bobLink, f.link(t, a.Ref, "bob"))

	// nobody remains
	require.NoError(t, f.engine.Unlink(ctx, "bob", refs))
	assert.False(t, synced(projects.Ref))
	assert.False(t, synced(a.Ref))
	assert.NotNil(t, f.remote.Entry("bob", sitePath))
	assert.Nil(t, f.remote.Entry("bob", sitePath+"/Projects"))
}

func TestUnlink_WithoutLink(t *testing.T) {
	f := newFixture(t, "alice")
	doc := f.file(t, f.lib.Ref, "a.txt", "a")

	err := f.engine.Unlink(context.Background(), "alice", []repo.NodeRef{doc.Ref})
	assert.ErrorIs(t, err, ErrNoUserMetadata)
}

func TestLinkStatus(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	doc := f.file(t, f.lib.Ref, "a.txt", "a")

	_, err := f.engine.LinkStatus(ctx, "alice", doc.Ref)
	assert.ErrorIs(t, err, ErrNoUserMetadata)

	require.NoError(t, f.engine.Link(ctx, "alice", []repo.NodeRef{doc.Ref}))
	require.NoError(t, f.engine.Link(ctx, "bob", []repo.NodeRef{doc.Ref}))

	status, err := f.engine.LinkStatus(ctx, "alice", doc.Ref)
	require.NoError(t, err)
	assert.Equal(t, sitePath+"/a.txt", status.RemotePath)
	assert.Equal(t, "rev1", status.Rev)
	assert.Equal(t, 2, status.LinkedUsers)
	assert.False(t, status.InProgress)
}

func TestKeyedLocks_ReleaseEntries(t *testing.T) {
	locks := newKeyedLocks()
	unlockA := locks.Lock("n1", "alice")
	unlockB := locks.Lock("n1", "bob")
	assert.Equal(t, 2, locks.size())

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("n1", "alice")
		unlock()
		close(done)
	}()

	unlockA()
	<-done
	unlockB()
	assert.Equal(t, 0, locks.size())
}
