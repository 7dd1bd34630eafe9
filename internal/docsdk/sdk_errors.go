package docsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL = errors.New("sdk: server url missing")
	ErrNoIdentity  = errors.New("sdk: access token or user required")
)

// error codes returned by the API
const (
	CodeInvalidRequest    = "E_INVALID_REQUEST"
	CodeRateLimited       = "E_RATE_LIMITED"
	CodeInternalError     = "E_INTERNAL_ERROR"
	CodeNotFound          = "E_NOT_FOUND"
	CodeConflict          = "E_CONFLICT"
	CodeNotASite          = "E_NOT_A_SITE"
	CodeNotLinked         = "E_NOT_LINKED"
	CodeNoUserMetadata    = "E_NO_USER_METADATA"
	CodeNoPendingAuth     = "E_NO_PENDING_AUTH"
	CodePollRunning       = "E_POLL_RUNNING"
	CodeTooLarge          = "E_TOO_LARGE"
	CodeRemoteAuthExpired = "E_REMOTE_AUTH_EXPIRED"
	CodeRemoteUnavailable = "E_REMOTE_UNAVAILABLE"
	CodeAuthInvalid       = "E_AUTH_INVALID_CREDENTIALS"
	CodeRefreshFailed     = "E_AUTH_TOKEN_REFRESH_FAILED"
	CodeAccessDenied      = "E_ACCESS_DENIED"
)

// APIError is the error body of every failed API call
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.Status = resp.StatusCode
			return fmt.Errorf("%s %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s %s", operation, resp.Status)
	}

	return nil
}
