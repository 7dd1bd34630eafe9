package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/server/handlers/api"
	"github.com/openmined/docsync/internal/server/middlewares"
)

type SyncService interface {
	Link(ctx context.Context, user string, refs []repo.NodeRef) error
	Unlink(ctx context.Context, user string, refs []repo.NodeRef) error
	PullNow(ctx context.Context, user string, refs []repo.NodeRef) error
	LinkStatus(ctx context.Context, user string, ref repo.NodeRef) (*engine.LinkStatus, error)
}

type NodesHandler struct {
	sync SyncService
}

func New(sync SyncService) *NodesHandler {
	return &NodesHandler{sync: sync}
}

func (h *NodesHandler) Link(ctx *gin.Context) {
	h.apply(ctx, "link", h.sync.Link)
}

func (h *NodesHandler) Unlink(ctx *gin.Context) {
	h.apply(ctx, "unlink", h.sync.Unlink)
}

func (h *NodesHandler) Pull(ctx *gin.Context) {
	h.apply(ctx, "pull", h.sync.PullNow)
}

func (h *NodesHandler) apply(ctx *gin.Context, op string, fn func(context.Context, string, []repo.NodeRef) error) {
	var req NodesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}

	user := middlewares.User(ctx)
	if err := fn(ctx, user, req.Nodes); err != nil {
		slog.Warn(op+" failed", "user", user, "nodes", req.Nodes, "error", err)
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *NodesHandler) Status(ctx *gin.Context) {
	status, err := h.sync.LinkStatus(ctx, middlewares.User(ctx), repo.NodeRef(ctx.Param("ref")))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, status)
}
