package auth

// RefreshRequest is the request for a new access token.
type RefreshRequest struct {
	OldRefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshResponse is the response for a new access token.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
