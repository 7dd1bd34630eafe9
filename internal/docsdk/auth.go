package docsdk

import (
	"context"

	"github.com/imroc/req/v3"
)

const authRefresh = "/auth/refresh"

type AuthAPI struct {
	client *req.Client
}

// Refresh trades a refresh token for a new token pair
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (apiResp *TokenPair, err error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"refreshToken": refreshToken}).
		SetSuccessResult(&apiResp).
		Post(authRefresh)

	if err := handleAPIError(resp, err, "refresh token"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

// RefreshTokens refreshes without a configured identity, for callers
// whose access token has already expired
func RefreshTokens(ctx context.Context, serverURL, refreshToken string) (*TokenPair, error) {
	if serverURL == "" {
		return nil, ErrNoServerURL
	}
	client := req.C().
		SetBaseURL(serverURL).
		SetUserAgent(UserAgent).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	api := &AuthAPI{client: client}
	return api.Refresh(ctx, refreshToken)
}
