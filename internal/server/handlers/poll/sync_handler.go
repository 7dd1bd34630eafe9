package poll

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/server/handlers/api"
)

type PollRunner interface {
	RunOnce(ctx context.Context) error
}

type SyncHandler struct {
	poller PollRunner
}

func New(poller PollRunner) *SyncHandler {
	return &SyncHandler{poller: poller}
}

// Poll runs one pass inline. A pass already running elsewhere answers 409.
func (h *SyncHandler) Poll(ctx *gin.Context) {
	if err := h.poller.RunOnce(ctx); err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
