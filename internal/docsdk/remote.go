package docsdk

import (
	"context"

	"github.com/imroc/req/v3"
)

const (
	v1RemoteUser      = "/api/v1/remote/user"
	v1RemoteAuthorize = "/api/v1/remote/authorize"
	v1RemoteComplete  = "/api/v1/remote/complete"
	v1RemoteProfile   = "/api/v1/remote/profile"
)

// RemoteAPI links the caller's remote account
type RemoteAPI struct {
	client *req.Client
}

func (r *RemoteAPI) User(ctx context.Context) (apiResp *RemoteUser, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(v1RemoteUser)

	if err := handleAPIError(resp, err, "remote user"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

// Authorize returns the URL the user visits to approve access
func (r *RemoteAPI) Authorize(ctx context.Context, callbackURL string) (apiResp *AuthorizeResponse, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"callback_url": callbackURL}).
		SetSuccessResult(&apiResp).
		Post(v1RemoteAuthorize)

	if err := handleAPIError(resp, err, "remote authorize"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RemoteAPI) Complete(ctx context.Context, verifier string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"verifier": verifier}).
		Post(v1RemoteComplete)

	return handleAPIError(resp, err, "remote complete")
}

func (r *RemoteAPI) Profile(ctx context.Context) (apiResp *Profile, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(v1RemoteProfile)

	if err := handleAPIError(resp, err, "remote profile"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

// Delink forgets the remote account and every sync link of the caller.
// It returns the number of links removed.
func (r *RemoteAPI) Delink(ctx context.Context) (int, error) {
	var apiResp struct {
		Removed int `json:"removed"`
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Delete(v1RemoteUser)

	if err := handleAPIError(resp, err, "remote delink"); err != nil {
		return 0, err
	}
	return apiResp.Removed, nil
}
