package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/server/handlers/api"
	"github.com/openmined/docsync/internal/server/middlewares"
)

// AccountService is the remote account linking surface of the engine
type AccountService interface {
	AuthorizeURL(ctx context.Context, user, callbackURL string) (*remote.RequestToken, error)
	Complete(ctx context.Context, user, verifier string) error
	Profile(ctx context.Context, user string) (*remote.Profile, error)
	Linked(ctx context.Context, user string) (bool, error)
	Delink(ctx context.Context, user string) (int, error)
}

type RemoteHandler struct {
	accounts AccountService
}

func New(accounts AccountService) *RemoteHandler {
	return &RemoteHandler{accounts: accounts}
}

// User reports whether the caller has a linked remote account, with the profile if so
func (h *RemoteHandler) User(ctx *gin.Context) {
	user := middlewares.User(ctx)

	linked, err := h.accounts.Linked(ctx, user)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	if !linked {
		ctx.PureJSON(http.StatusOK, &UserResponse{Linked: false})
		return
	}

	profile, err := h.accounts.Profile(ctx, user)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &UserResponse{Linked: true, Profile: profile})
}

func (h *RemoteHandler) Authorize(ctx *gin.Context) {
	var req AuthorizeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}

	rt, err := h.accounts.AuthorizeURL(ctx, middlewares.User(ctx), req.CallbackURL)
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &AuthorizeResponse{URL: rt.URL, Token: rt.Token})
}

func (h *RemoteHandler) Complete(ctx *gin.Context) {
	var req CompleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}

	if err := h.accounts.Complete(ctx, middlewares.User(ctx), req.Verifier); err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *RemoteHandler) Profile(ctx *gin.Context) {
	profile, err := h.accounts.Profile(ctx, middlewares.User(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, profile)
}

func (h *RemoteHandler) Delink(ctx *gin.Context) {
	removed, err := h.accounts.Delink(ctx, middlewares.User(ctx))
	if err != nil {
		api.AbortWithDomainError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &DelinkResponse{Removed: removed})
}
