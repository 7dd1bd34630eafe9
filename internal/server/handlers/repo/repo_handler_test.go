package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/repo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *repo.Store) {
	t.Helper()
	ctx := context.Background()

	database, err := db.NewSqliteDb()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(ctx, database))

	store := repo.NewStore(database, afero.NewMemMapFs(), "/content")
	require.NoError(t, store.Init(ctx))

	gin.SetMode(gin.TestMode)
	h := New(store)
	r := gin.New()
	r.GET("/repo/sites", h.ListSites)
	r.POST("/repo/sites", h.CreateSite)
	r.GET("/repo/resolve", h.Resolve)
	r.GET("/repo/nodes/:ref", h.GetNode)
	r.DELETE("/repo/nodes/:ref", h.Delete)
	r.GET("/repo/nodes/:ref/children", h.Children)
	r.POST("/repo/nodes/:ref/folders", h.CreateFolder)
	r.PUT("/repo/nodes/:ref/files/:name", h.CreateFile)
	r.GET("/repo/nodes/:ref/content", h.ReadContent)
	r.PUT("/repo/nodes/:ref/content", h.WriteContent)
	r.POST("/repo/nodes/:ref/move", h.Move)
	r.POST("/repo/nodes/:ref/copy", h.Copy)
	return r, store
}

func call(t *testing.T, r http.Handler, method, target, contentType, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestSiteAndFileLifecycle(t *testing.T) {
	r, store := newTestRouter(t)

	var site SiteResponse
	w := call(t, r, http.MethodPost, "/repo/sites", "application/json", `{"name":"eng"}`, &site)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/Company Home/Sites/eng/documentLibrary", site.Library.Path)

	w = call(t, r, http.MethodPost, "/repo/sites", "application/json", `{"name":"eng"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var sites ChildrenResponse
	call(t, r, http.MethodGet, "/repo/sites", "", "", &sites)
	require.Len(t, sites.Children, 1)
	assert.Equal(t, "eng", sites.Children[0].Name)

	lib := string(site.Library.Ref)
	var folder NodeResponse
	w = call(t, r, http.MethodPost, "/repo/nodes/"+lib+"/folders", "application/json", `{"name":"Projects"}`, &folder)
	require.Equal(t, http.StatusCreated, w.Code)

	var file NodeResponse
	w = call(t, r, http.MethodPut, "/repo/nodes/"+string(folder.Ref)+"/files/a.txt", "text/plain", "hello", &file)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(5), file.Size)
	assert.Equal(t, "/Company Home/Sites/eng/documentLibrary/Projects/a.txt", file.Path)

	w = call(t, r, http.MethodPut, "/repo/nodes/"+string(file.Ref)+"/content", "text/plain", "hello again", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, r, http.MethodGet, "/repo/nodes/"+string(file.Ref)+"/content", "", "", nil)
	assert.Equal(t, "hello again", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))

	var resolved NodeResponse
	w = call(t, r, http.MethodGet, "/repo/resolve?path="+url.QueryEscape(file.Path), "", "", &resolved)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, file.Ref, resolved.Ref)

	var moved NodeResponse
	w = call(t, r, http.MethodPost, "/repo/nodes/"+string(file.Ref)+"/move", "application/json", `{"parent":"`+lib+`","name":"b.txt"}`, &moved)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b.txt", moved.Name)

	var dup NodeResponse
	w = call(t, r, http.MethodPost, "/repo/nodes/"+string(folder.Ref)+"/copy", "application/json", `{"parent":"`+lib+`"}`, &dup)
	assert.Equal(t, http.StatusConflict, w.Code, "copy into the same folder collides by name")

	w = call(t, r, http.MethodDelete, "/repo/nodes/"+string(moved.Ref), "", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := store.Get(context.Background(), moved.Ref)
	assert.ErrorIs(t, err, repo.ErrNodeNotFound)

	var kids ChildrenResponse
	call(t, r, http.MethodGet, "/repo/nodes/"+lib+"/children", "", "", &kids)
	require.Len(t, kids.Children, 1)
	assert.Equal(t, "Projects", kids.Children[0].Name)
}

func TestRepoErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	w := call(t, r, http.MethodGet, "/repo/nodes/missing", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "E_NOT_FOUND")

	w = call(t, r, http.MethodGet, "/repo/resolve", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, http.MethodPost, "/repo/sites", "application/json", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
