package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrInvalidSubject      = errors.New("invalid subject")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// AuthService issues and validates the bearer tokens of API callers.
// Tokens are minted by operators with `docsync-server token`, there is no login flow.
type AuthService struct {
	config *Config
}

func NewAuthService(config *Config) *AuthService {
	return &AuthService{
		config: config,
	}
}

func (s *AuthService) IsEnabled() bool {
	return s.config.Enabled
}

// IssueTokens mints an access/refresh pair for subject
func (s *AuthService) IssueTokens(_ context.Context, subject string) (string, string, error) {
	if !s.IsEnabled() {
		slog.Debug("auth is disabled, will not generate tokens")
		return "", "", nil
	}

	if strings.TrimSpace(subject) == "" {
		return "", "", ErrInvalidSubject
	}

	accessToken, refreshToken, err := generateTokenPair(subject, s.config)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token pair: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, oldRefreshToken string) (string, string, error) {
	if oldRefreshToken == "" {
		return "", "", ErrInvalidRefreshToken
	}

	claims, err := s.ValidateRefreshToken(ctx, oldRefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to refresh token pair: %w", err)
	}

	accessToken, refreshToken, err := generateTokenPair(claims.Subject, s.config)
	if err != nil {
		return "", "", fmt.Errorf("failed to refresh token pair: %w", err)
	}

	return accessToken, refreshToken, nil
}

func (s *AuthService) ValidateAccessToken(_ context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}

	claims, err := parseClaims(accessToken, s.config.AccessTokenSecret, s.config.TokenIssuer, AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	return claims, nil
}

func (s *AuthService) ValidateRefreshToken(_ context.Context, refreshToken string) (*Claims, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := parseClaims(refreshToken, s.config.RefreshTokenSecret, s.config.TokenIssuer, RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	return claims, nil
}
