package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS"  // API token is invalid, expired, or malformed
	CodeAuthTokenRefreshFailed = "E_AUTH_TOKEN_REFRESH_FAILED" // refresh token rejected

	// Repository errors
	CodeNotFound = "E_NOT_FOUND"
	CodeConflict = "E_CONFLICT"
	CodeNotASite = "E_NOT_A_SITE"

	// Sync errors
	CodeNotLinked         = "E_NOT_LINKED"          // user has no remote credentials
	CodeNoUserMetadata    = "E_NO_USER_METADATA"    // node is not synced for the user
	CodeNoPendingAuth     = "E_NO_PENDING_AUTH"     // complete called without authorize
	CodePollRunning       = "E_POLL_RUNNING"        // another poll pass holds the lock
	CodeTooLarge          = "E_TOO_LARGE"           // file exceeds the remote size ceiling
	CodeRemoteAuthExpired = "E_REMOTE_AUTH_EXPIRED" // user must re-authorize the remote account
	CodeRemoteUnavailable = "E_REMOTE_UNAVAILABLE"
)
