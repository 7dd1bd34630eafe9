package remote

import "github.com/openmined/docsync/internal/remote"

type AuthorizeRequest struct {
	CallbackURL string `json:"callback_url"`
}

type AuthorizeResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type CompleteRequest struct {
	Verifier string `json:"verifier" binding:"required"`
}

type UserResponse struct {
	Linked  bool            `json:"linked"`
	Profile *remote.Profile `json:"profile,omitempty"`
}

type DelinkResponse struct {
	Removed int `json:"removed"`
}
