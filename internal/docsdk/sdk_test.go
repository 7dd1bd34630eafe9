package docsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/server"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	remote *memremote.Server
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := &server.Config{
		DataDir: t.TempDir(),
		HTTP:    server.HTTPConfig{Addr: server.DefaultAddr},
		DB:      server.DBConfig{Driver: "sqlite3", Path: ":memory:"},
		Remote:  server.RemoteConfig{Driver: server.RemoteMemory, AuthorizeURL: "https://remote.test/authorize"},
		Repo:    server.RepoConfig{ContentDir: "content", ShareHost: "host"},
		Poller:  server.PollerConfig{LockFile: "poll.lock"},
	}
	remoteSrv := memremote.New(clockwork.NewFakeClock())
	srv, err := server.New(ctx, cfg, server.WithFs(afero.NewMemMapFs()), server.WithDial(remoteSrv.Dial))
	require.NoError(t, err)
	require.NoError(t, srv.Services().Start(ctx))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return &harness{remote: remoteSrv, url: ts.URL}
}

func (h *harness) client(t *testing.T, user string) *DocSync {
	t.Helper()
	sdk, err := New(&Config{BaseURL: h.url, User: user})
	require.NoError(t, err)
	return sdk
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrNoServerURL)
	assert.Error(t, (&Config{BaseURL: "not a url", User: "a"}).Validate())
	assert.ErrorIs(t, (&Config{BaseURL: "http://localhost:8080"}).Validate(), ErrNoIdentity)
	assert.NoError(t, (&Config{BaseURL: "http://localhost:8080", AccessToken: "t"}).Validate())
}

func TestSDK_RepoAndSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sdk := h.client(t, "alice")

	site, err := sdk.Repo.CreateSite(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, "/Company Home/Sites/eng/documentLibrary", site.Library.Path)

	sites, err := sdk.Repo.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)

	doc, err := sdk.Repo.CreateFile(ctx, site.Library.Ref, "notes.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)

	data, mimeType, err := sdk.Repo.ReadContent(ctx, doc.Ref)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", mimeType)

	// not linked yet
	err = sdk.Nodes.Link(ctx, doc.Ref)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotLinked))

	user, err := sdk.Remote.User(ctx)
	require.NoError(t, err)
	assert.False(t, user.Linked)

	authz, err := sdk.Remote.Authorize(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, authz.URL)
	require.NoError(t, sdk.Remote.Complete(ctx, "key:secret"))

	profile, err := sdk.Remote.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User)

	require.NoError(t, sdk.Nodes.Link(ctx, doc.Ref))
	got, ok := h.remote.Content("alice", "/host/Sites/eng/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	status, err := sdk.Nodes.Status(ctx, doc.Ref)
	require.NoError(t, err)
	assert.Equal(t, "/host/Sites/eng/notes.txt", status.RemotePath)
	assert.Equal(t, 1, status.LinkedUsers)

	h.remote.SetFile("alice", "/host/Sites/eng/notes.txt", []byte("from remote"))
	require.NoError(t, sdk.Nodes.Pull(ctx, doc.Ref))
	data, _, err = sdk.Repo.ReadContent(ctx, doc.Ref)
	require.NoError(t, err)
	assert.Equal(t, "from remote", string(data))

	require.NoError(t, sdk.Sync.Poll(ctx))

	removed, err := sdk.Remote.Delink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSDK_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sdk := h.client(t, "alice")

	_, err := sdk.Repo.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	assert.Error(t, sdk.Nodes.Link(ctx))

	// no identity at all is rejected by the server
	anon, err := New(&Config{BaseURL: h.url, AccessToken: "bogus"})
	require.NoError(t, err)
	_, err = anon.Remote.User(ctx)
	assert.True(t, IsCode(err, CodeAuthInvalid))
}
