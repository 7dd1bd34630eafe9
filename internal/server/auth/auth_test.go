package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:            true,
		TokenIssuer:        "https://docsync.test",
		AccessTokenSecret:  "access-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenSecret: "refresh-secret",
		RefreshTokenExpiry: 24 * time.Hour,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.TokenIssuer = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.AccessTokenSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret
	assert.Error(t, cfg.Validate())
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(testConfig())

	access, refresh, err := svc.IssueTokens(ctx, "alice")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, AccessToken, claims.Type)
	assert.Equal(t, "https://docsync.test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	// tokens are not interchangeable
	_, err = svc.ValidateAccessToken(ctx, refresh)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
	_, err = svc.ValidateRefreshToken(ctx, access)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = svc.IssueTokens(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(testConfig())

	_, refresh, err := svc.IssueTokens(ctx, "bob")
	require.NoError(t, err)

	access, _, err := svc.RefreshToken(ctx, refresh)
	require.NoError(t, err)
	claims, err := svc.ValidateAccessToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)

	_, _, err = svc.RefreshToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = svc.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestTokenExpiryAndSignature(t *testing.T) {
	cfg := testConfig()
	token, err := newToken("alice", cfg.TokenIssuer, cfg.AccessTokenSecret, -time.Minute, AccessToken)
	require.NoError(t, err)

	// negative expiry means no expiry claim at all
	_, err = NewAuthService(cfg).ValidateAccessToken(context.Background(), token)
	assert.NoError(t, err)

	token, err = newToken("alice", cfg.TokenIssuer, "other-secret", time.Hour, AccessToken)
	require.NoError(t, err)
	_, err = NewAuthService(cfg).ValidateAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestTokenIssuerAndSubject(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	svc := NewAuthService(cfg)

	token, err := newToken("alice", "https://elsewhere.test", cfg.AccessTokenSecret, time.Hour, AccessToken)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	token, err = newToken("", cfg.TokenIssuer, cfg.RefreshTokenSecret, time.Hour, RefreshToken)
	require.NoError(t, err)
	_, err = svc.ValidateRefreshToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestDisabledIssuesNothing(t *testing.T) {
	svc := NewAuthService(&Config{})
	assert.False(t, svc.IsEnabled())
	access, refresh, err := svc.IssueTokens(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}
