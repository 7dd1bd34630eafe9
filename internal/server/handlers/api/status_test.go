package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{remote.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{repo.ErrNodeNotFound, http.StatusNotFound, CodeNotFound},
		{remote.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge},
		{remote.ErrConflict, http.StatusConflict, CodeConflict},
		{repo.ErrNameExists, http.StatusConflict, CodeConflict},
		{repo.ErrNotASite, http.StatusBadRequest, CodeNotASite},
		{engine.ErrNotLinked, http.StatusPreconditionFailed, CodeNotLinked},
		{engine.ErrNoUserMetadata, http.StatusPreconditionFailed, CodeNoUserMetadata},
		{remote.ErrAuthExpired, http.StatusUnauthorized, CodeRemoteAuthExpired},
		{remote.ErrNotModified, http.StatusNotModified, ""},
		{remote.ErrUnavailable, http.StatusBadGateway, CodeRemoteUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("push /host/Sites/eng/a.txt: %w", tt.err)
			status, code := StatusFor(wrapped)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestAbortWithDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	AbortWithDomainError(c, fmt.Errorf("link: %w", engine.ErrNotLinked))

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.JSONEq(t, `{"code":"E_NOT_LINKED","error":"link: remote account not linked"}`, w.Body.String())
	assert.True(t, c.IsAborted())
}
