package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithDomainError picks status and code from the error itself
func AbortWithDomainError(ctx *gin.Context, err error) {
	status, code := StatusFor(err)
	if status == http.StatusNotModified {
		ctx.Abort()
		ctx.Error(err)
		ctx.Status(status)
		return
	}
	AbortWithError(ctx, status, code, err)
}
