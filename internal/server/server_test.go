package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/remote/memremote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/server/auth"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	return &Config{
		DataDir: t.TempDir(),
		HTTP:    HTTPConfig{Addr: DefaultAddr},
		DB:      DBConfig{Driver: "sqlite3", Path: ":memory:"},
		Remote:  RemoteConfig{Driver: RemoteMemory, AuthorizeURL: "https://remote.test/authorize"},
		Repo:    RepoConfig{ContentDir: "content", ShareHost: "host"},
		Poller:  PollerConfig{LockFile: "poll.lock"},
	}
}

type testServer struct {
	*Server
	remote *memremote.Server
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, cfg.Validate())

	remoteSrv := memremote.New(clockwork.NewFakeClock())
	srv, err := New(ctx, cfg, WithFs(afero.NewMemMapFs()), WithDial(remoteSrv.Dial))
	require.NoError(t, err)
	require.NoError(t, srv.svc.Start(ctx))
	t.Cleanup(func() { srv.Stop() })
	return &testServer{Server: srv, remote: remoteSrv}
}

func (s *testServer) do(t *testing.T, method, target, user, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Docsync-User", user)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

type node struct {
	Ref  string `json:"ref"`
	Path string `json:"path"`
}

func TestServer_LinkFlowEndToEnd(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ctx := context.Background()

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", "", nil))

	var site struct {
		Library node `json:"library"`
	}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/repo/sites", "alice", `{"name":"eng"}`, &site))

	var projects node
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/repo/nodes/"+site.Library.Ref+"/folders", "alice", `{"name":"Projects"}`, &projects))
	var doc node
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPut, "/api/v1/repo/nodes/"+projects.Ref+"/files/a.txt", "alice", "v1", &doc))

	// linking before the account is connected fails with a re-auth hint
	assert.Equal(t, http.StatusPreconditionFailed, s.do(t, http.MethodPost, "/api/v1/nodes/link", "alice", `{"nodes":["`+projects.Ref+`"]}`, nil))

	var linked struct {
		Linked bool `json:"linked"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/remote/user", "alice", "", &linked))
	assert.False(t, linked.Linked)

	var authz struct {
		URL string `json:"url"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/remote/authorize", "alice", `{"callback_url":"https://app/cb"}`, &authz))
	assert.True(t, strings.HasPrefix(authz.URL, "https://remote.test/authorize"))
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/remote/complete", "alice", `{"verifier":"k:s"}`, nil))

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/nodes/link", "alice", `{"nodes":["`+projects.Ref+`"]}`, nil))
	got, ok := s.remote.Content("alice", "/host/Sites/eng/Projects/a.txt")
	require.True(t, ok)
	assert.Equal(t, "v1", string(got))

	var status struct {
		RemotePath string `json:"remotePath"`
		Rev        string `json:"rev"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/nodes/"+doc.Ref+"/status", "alice", "", &status))
	assert.Equal(t, "/host/Sites/eng/Projects/a.txt", status.RemotePath)
	assert.Equal(t, "rev1", status.Rev)

	// an edit through the API reaches the remote through the triggers
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/repo/nodes/"+doc.Ref+"/content", "alice", "v2", nil))
	require.NoError(t, s.Services().Triggers.Flush(ctx))
	got, _ = s.remote.Content("alice", "/host/Sites/eng/Projects/a.txt")
	assert.Equal(t, "v2", string(got))

	// and a remote edit comes back with a poll pass
	s.remote.SetFile("alice", "/host/Sites/eng/Projects/a.txt", []byte("v3"))
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/sync/poll", "alice", "", nil))
	data, _, err := s.Services().Repo.ReadContent(ctx, repo.NodeRef(doc.Ref))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(data))

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/v1/nodes/unlink", "alice", `{"nodes":["`+projects.Ref+`"]}`, nil))
	assert.Nil(t, s.remote.Entry("alice", "/host/Sites/eng/Projects"))
}

func TestServer_RequiresUser(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/remote/user", "", "", nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/nope", "alice", "", nil))
}

func TestServer_JWT(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = auth.Config{
		Enabled:            true,
		TokenIssuer:        "docsync",
		AccessTokenSecret:  "access",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenSecret: "refresh",
	}
	s := newTestServer(t, cfg)

	access, refresh, err := s.Services().Auth.IssueTokens(context.Background(), "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/remote/user", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// the user header alone is not enough
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/remote/user", "alice", "", nil))

	var pair struct {
		AccessToken string `json:"accessToken"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+refresh+`"}`, &pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+access+`"}`, nil))
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(cfg.DataDir, "content"), cfg.ContentPath())
	assert.Equal(t, ":memory:", cfg.DBPath())

	tests := map[string]func(c *Config){
		"no data dir":       func(c *Config) { c.DataDir = "" },
		"bad log level":     func(c *Config) { c.LogLevel = "loud" },
		"cert without key":  func(c *Config) { c.HTTP.CertFile = "cert.pem" },
		"bad rate":          func(c *Config) { c.HTTP.RateLimit = "fast" },
		"bad cors origin":   func(c *Config) { c.HTTP.CORSOrigins = []string{"docs.example.com"} },
		"unknown db":        func(c *Config) { c.DB.Driver = "mysql" },
		"postgres no dsn":   func(c *Config) { c.DB.Driver = "postgres" },
		"unknown remote":    func(c *Config) { c.Remote.Driver = "ftp" },
		"s3 without bucket": func(c *Config) { c.Remote.Driver = RemoteS3 },
		"share host slash":  func(c *Config) { c.Repo.ShareHost = "a/b" },
		"bad site pattern":  func(c *Config) { c.Poller.Sites = []string{"[eng"} },
		"auth no secret":    func(c *Config) { c.Auth.Enabled = true },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
