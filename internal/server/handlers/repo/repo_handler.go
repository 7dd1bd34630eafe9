package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/server/handlers/api"
)

const defaultMimeType = "application/octet-stream"

// Repository is the write surface operators drive directly. Every write here
// goes through the repository and reaches the sync triggers like any other edit.
type Repository interface {
	Get(ctx context.Context, ref repo.NodeRef) (*repo.Node, error)
	Path(ctx context.Context, ref repo.NodeRef) (string, error)
	Resolve(ctx context.Context, path string) (*repo.Node, error)
	Children(ctx context.Context, ref repo.NodeRef) ([]*repo.Node, error)
	Sites(ctx context.Context) ([]*repo.Node, error)
	CreateSite(ctx context.Context, name string) (*repo.Node, error)
	DocumentLibrary(ctx context.Context, site repo.NodeRef) (*repo.Node, error)
	CreateNode(ctx context.Context, parent repo.NodeRef, name string, typ repo.NodeType) (*repo.Node, error)
	CreateFile(ctx context.Context, parent repo.NodeRef, name string, data []byte, mimeType string) (*repo.Node, error)
	ReadContent(ctx context.Context, ref repo.NodeRef) ([]byte, string, error)
	WriteContent(ctx context.Context, ref repo.NodeRef, data []byte, mimeType string) (*repo.Node, error)
	Move(ctx context.Context, ref, newParent repo.NodeRef, newName string) (*repo.Node, error)
	Copy(ctx context.Context, ref, newParent repo.NodeRef) (*repo.Node, error)
	Delete(ctx context.Context, ref repo.NodeRef) error
}

type RepoHandler struct {
	repo Repository
}

func New(r Repository) *RepoHandler {
	return &RepoHandler{repo: r}
}

func (h *RepoHandler) ListSites(ctx *gin.Context) {
	sites, err := h.repo.Sites(ctx)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	h.respondList(ctx, sites)
}

func (h *RepoHandler) CreateSite(ctx *gin.Context) {
	var req SiteRequest
	if !bind(ctx, &req) {
		return
	}

	site, err := h.repo.CreateSite(ctx, req.Name)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	lib, err := h.repo.DocumentLibrary(ctx, site.Ref)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusCreated, &SiteResponse{Site: h.describe(ctx, site), Library: h.describe(ctx, lib)})
}

// Resolve looks a node up by its full display path, e.g. "/Company Home/Sites/eng/documentLibrary"
func (h *RepoHandler) Resolve(ctx *gin.Context) {
	p := ctx.Query("path")
	if p == "" {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("path is required"))
		return
	}
	n, err := h.repo.Resolve(ctx, p)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, h.describe(ctx, n))
}

func (h *RepoHandler) GetNode(ctx *gin.Context) {
	n, err := h.repo.Get(ctx, ref(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, h.describe(ctx, n))
}

func (h *RepoHandler) Children(ctx *gin.Context) {
	kids, err := h.repo.Children(ctx, ref(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	h.respondList(ctx, kids)
}

func (h *RepoHandler) CreateFolder(ctx *gin.Context) {
	var req FolderRequest
	if !bind(ctx, &req) {
		return
	}

	n, err := h.repo.CreateNode(ctx, ref(ctx), req.Name, repo.TypeFolder)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusCreated, h.describe(ctx, n))
}

// CreateFile stores the raw request body as a new file named by the path
func (h *RepoHandler) CreateFile(ctx *gin.Context) {
	data, ok := readBody(ctx)
	if !ok {
		return
	}

	n, err := h.repo.CreateFile(ctx, ref(ctx), ctx.Param("name"), data, mimeType(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusCreated, h.describe(ctx, n))
}

func (h *RepoHandler) ReadContent(ctx *gin.Context) {
	data, mt, err := h.repo.ReadContent(ctx, ref(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	if mt == "" {
		mt = defaultMimeType
	}
	ctx.Data(http.StatusOK, mt, data)
}

func (h *RepoHandler) WriteContent(ctx *gin.Context) {
	data, ok := readBody(ctx)
	if !ok {
		return
	}

	n, err := h.repo.WriteContent(ctx, ref(ctx), data, mimeType(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, h.describe(ctx, n))
}

func (h *RepoHandler) Move(ctx *gin.Context) {
	var req MoveRequest
	if !bind(ctx, &req) {
		return
	}

	n, err := h.repo.Move(ctx, ref(ctx), req.Parent, req.Name)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, h.describe(ctx, n))
}

func (h *RepoHandler) Copy(ctx *gin.Context) {
	var req CopyRequest
	if !bind(ctx, &req) {
		return
	}

	n, err := h.repo.Copy(ctx, ref(ctx), req.Parent)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusCreated, h.describe(ctx, n))
}

func (h *RepoHandler) Delete(ctx *gin.Context) {
	if err := h.repo.Delete(ctx, ref(ctx)); err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *RepoHandler) respondList(ctx *gin.Context, nodes []*repo.Node) {
	resp := &ChildrenResponse{Children: make([]*NodeResponse, 0, len(nodes))}
	for _, n := range nodes {
		resp.Children = append(resp.Children, toResponse(n))
	}
	ctx.PureJSON(http.StatusOK, resp)
}

// describe fills the display path, which costs one ancestry walk
func (h *RepoHandler) describe(ctx context.Context, n *repo.Node) *NodeResponse {
	resp := toResponse(n)
	if p, err := h.repo.Path(ctx, n.Ref); err == nil {
		resp.Path = p
	}
	return resp
}

func ref(ctx *gin.Context) repo.NodeRef {
	return repo.NodeRef(ctx.Param("ref"))
}

func mimeType(ctx *gin.Context) string {
	if ct := ctx.ContentType(); ct != "" {
		return ct
	}
	return defaultMimeType
}

func bind(ctx *gin.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return false
	}
	return true
}

// readBody caps uploads at the remote size ceiling since nothing larger could ever sync
func readBody(ctx *gin.Context) ([]byte, bool) {
	if err := remote.CheckSize(ctx.Request.URL.Path, ctx.Request.ContentLength); err != nil {
		api.AbortWithDomainError(ctx, err)
		return nil, false
	}
	data, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, remote.MaxFileSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.AbortWithDomainError(ctx, fmt.Errorf("%w: %s", remote.ErrTooLarge, ctx.Request.URL.Path))
			return nil, false
		}
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("read body: %w", err))
		return nil, false
	}
	return data, true
}
