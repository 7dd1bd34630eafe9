package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/server"
	"github.com/openmined/docsync/internal/server/auth"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type harness struct {
	t      *testing.T
	srv    *server.Server
	remote *memremote.Server
	url    string
	config string
	stdin  string
}

func newHarness(t *testing.T, mutate ...func(*server.Config)) *harness {
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
	for _, m := range mutate {
		m(cfg)
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
	return &harness{
		t:      t,
		srv:    srv,
		remote: remoteSrv,
		url:    ts.URL,
		config: filepath.Join(t.TempDir(), "missing.yaml"),
	}
}

// run executes the CLI against the harness server
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(h.stdin))
	cmd.SetArgs(append([]string{"--config", h.config, "--server", h.url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) runJSON(v any, args ...string) {
	h.t.Helper()
	out, err := h.run(append(args, "-o", "json")...)
	require.NoError(h.t, err, out)
	require.NoError(h.t, json.Unmarshal([]byte(out), v), out)
}

func TestCLI_LinkFlow(t *testing.T) {
	h := newHarness(t)

	var site docsdk.Site
	h.runJSON(&site, "-u", "alice", "repo", "create-site", "eng")
	assert.Equal(t, "/Company Home/Sites/eng/documentLibrary", site.Library.Path)

	var doc docsdk.Node
	h.stdin = "hello"
	h.runJSON(&doc, "-u", "alice", "repo", "put", site.Library.Path, "-", "--name", "notes.txt")
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Contains(t, doc.MimeType, "text/plain")

	_, err := h.run("-u", "alice", "link", doc.Ref)
	assert.True(t, docsdk.IsCode(err, docsdk.CodeNotLinked))

	var authz docsdk.AuthorizeResponse
	h.runJSON(&authz, "-u", "alice", "remote", "authorize")
	assert.Contains(t, authz.URL, "https://remote.test/authorize")

	out, err := h.run("-u", "alice", "remote", "complete", "key:secret")
	require.NoError(t, err)
	assert.Contains(t, out, "remote account linked")

	out, err = h.run("-u", "alice", "link", site.Library.Path+"/notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "linked 1 node(s)")
	_, ok := h.remote.Content("alice", "/host/Sites/eng/notes.txt")
	assert.True(t, ok)

	var status docsdk.LinkStatus
	h.runJSON(&status, "-u", "alice", "status", doc.Ref)
	assert.Equal(t, "/host/Sites/eng/notes.txt", status.RemotePath)
	assert.Equal(t, 1, status.LinkedUsers)

	h.remote.SetFile("alice", "/host/Sites/eng/notes.txt", []byte("from remote"))
	_, err = h.run("-u", "alice", "pull", doc.Ref)
	require.NoError(t, err)

	out, err = h.run("-u", "alice", "repo", "cat", doc.Ref)
	require.NoError(t, err)
	assert.Equal(t, "from remote", out)

	out, err = h.run("-u", "alice", "poll")
	require.NoError(t, err)
	assert.Contains(t, out, "poll pass complete")

	out, err = h.run("-u", "alice", "unlink", doc.Ref)
	require.NoError(t, err)
	assert.Contains(t, out, "unlinked 1 node(s)")
	assert.Nil(t, h.remote.Entry("alice", "/host/Sites/eng/notes.txt"))

	var removed map[string]int
	h.runJSON(&removed, "-u", "alice", "remote", "delink")
	assert.Equal(t, 0, removed["removed"])
}

func TestCLI_RepoCommands(t *testing.T) {
	h := newHarness(t)

	var site docsdk.Site
	h.runJSON(&site, "-u", "bob", "repo", "create-site", "marketing")
	lib := site.Library.Ref

	var folder docsdk.Node
	h.runJSON(&folder, "-u", "bob", "repo", "mkdir", lib, "Projects")
	assert.Equal(t, "folder", folder.Type)

	var archive docsdk.Node
	h.runJSON(&archive, "-u", "bob", "repo", "mkdir", lib, "Archive")

	var doc docsdk.Node
	h.stdin = "# plan"
	h.runJSON(&doc, "-u", "bob", "repo", "put", folder.Ref, "-", "--name", "plan.md", "--mime-type", "text/markdown")
	assert.Equal(t, "text/markdown", doc.MimeType)

	out, err := h.run("-u", "bob", "repo", "ls", lib)
	require.NoError(t, err)
	assert.Contains(t, out, "Projects/")
	assert.Contains(t, out, "Archive/")

	var kids []docsdk.Node
	h.runJSON(&kids, "-u", "bob", "repo", "ls", folder.Ref)
	require.Len(t, kids, 1)
	assert.Equal(t, "plan.md", kids[0].Name)

	var moved docsdk.Node
	h.runJSON(&moved, "-u", "bob", "repo", "mv", doc.Ref, archive.Ref, "--name", "old-plan.md")
	assert.Equal(t, "old-plan.md", moved.Name)
	assert.Equal(t, archive.Ref, moved.Parent)

	var dup docsdk.Node
	h.runJSON(&dup, "-u", "bob", "repo", "cp", moved.Ref, folder.Ref)
	assert.NotEqual(t, moved.Ref, dup.Ref)

	var resolved docsdk.Node
	h.runJSON(&resolved, "-u", "bob", "repo", "resolve", "/Company Home/Sites/marketing/documentLibrary/Archive/old-plan.md")
	assert.Equal(t, moved.Ref, resolved.Ref)

	out, err = h.run("-u", "bob", "repo", "rm", dup.Ref, archive.Ref)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 node(s)")

	out, err = h.run("-u", "bob", "repo", "sites", "-o", "yaml")
	require.NoError(t, err)
	var sites []docsdk.Node
	require.NoError(t, yaml.Unmarshal([]byte(out), &sites))
	require.Len(t, sites, 1)
	assert.Equal(t, "marketing", sites[0].Name)

	_, err = h.run("-u", "bob", "repo", "put", lib, "-")
	assert.ErrorIs(t, err, errNameRequired)
	_, err = h.run("-u", "bob", "repo", "cat", "missing")
	assert.True(t, docsdk.IsCode(err, docsdk.CodeNotFound))
}

func TestCLI_RequiresIdentity(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("repo", "sites")
	assert.ErrorIs(t, err, docsdk.ErrNoIdentity)
}

func TestCLI_BadOutputFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("-u", "alice", "repo", "sites", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestCLI_EnvConfig(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DOCSYNC_USER", "carol")

	var user docsdk.RemoteUser
	h.runJSON(&user, "remote", "user")
	assert.False(t, user.Linked)
}

func TestCLI_Refresh(t *testing.T) {
	h := newHarness(t, func(cfg *server.Config) {
		cfg.Auth = auth.Config{
			Enabled:            true,
			TokenIssuer:        "docsync-test",
			AccessTokenSecret:  "access",
			RefreshTokenSecret: "refresh",
		}
	})
	_, refresh, err := h.srv.Services().Auth.IssueTokens(context.Background(), "dave")
	require.NoError(t, err)

	var tokens docsdk.TokenPair
	h.runJSON(&tokens, "refresh", refresh)
	require.NotEmpty(t, tokens.AccessToken)

	var user docsdk.RemoteUser
	h.runJSON(&user, "--token", tokens.AccessToken, "remote", "user")
	assert.False(t, user.Linked)

	_, err = h.run("refresh", "bogus")
	assert.True(t, docsdk.IsCode(err, docsdk.CodeRefreshFailed))
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestVersionCommand_Short(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.Version, strings.TrimSpace(out.String()))
}
