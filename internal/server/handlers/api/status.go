package api

import (
	"errors"
	"net/http"

	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/metastore"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/repo"
)

type errorStatus struct {
	err    error
	status int
	code   string
}

// checked in order, the first match wins
var errorTable = []errorStatus{
	{remote.ErrNotModified, http.StatusNotModified, ""},
	{remote.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{repo.ErrNodeNotFound, http.StatusNotFound, CodeNotFound},
	{remote.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge},
	{remote.ErrConflict, http.StatusConflict, CodeConflict},
	{repo.ErrNameExists, http.StatusConflict, CodeConflict},
	{engine.ErrPollAlreadyRunning, http.StatusConflict, CodePollRunning},
	{repo.ErrNotASite, http.StatusBadRequest, CodeNotASite},
	{repo.ErrNotAFolder, http.StatusBadRequest, CodeInvalidRequest},
	{repo.ErrNotAFile, http.StatusBadRequest, CodeInvalidRequest},
	{repo.ErrInvalidName, http.StatusBadRequest, CodeInvalidRequest},
	{repo.ErrInvalidMove, http.StatusBadRequest, CodeInvalidRequest},
	{remote.ErrInvalidVerifier, http.StatusBadRequest, CodeInvalidRequest},
	{repo.ErrAccessDenied, http.StatusForbidden, CodeAccessDenied},
	{engine.ErrNotLinked, http.StatusPreconditionFailed, CodeNotLinked},
	{engine.ErrNoUserMetadata, http.StatusPreconditionFailed, CodeNoUserMetadata},
	{metastore.ErrNoPendingAuth, http.StatusPreconditionFailed, CodeNoPendingAuth},
	{remote.ErrAuthExpired, http.StatusUnauthorized, CodeRemoteAuthExpired},
	{remote.ErrUnavailable, http.StatusBadGateway, CodeRemoteUnavailable},
}

// StatusFor maps a domain error to its HTTP status and error code
func StatusFor(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternalError
}
