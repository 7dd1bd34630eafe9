package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func generateTokenPair(subject string, config *Config) (accessToken string, refreshToken string, err error) {
	accessToken, err = newToken(subject, config.TokenIssuer, config.AccessTokenSecret, config.AccessTokenExpiry, AccessToken)
	if err != nil {
		return "", "", err
	}

	refreshToken, err = newToken(subject, config.TokenIssuer, config.RefreshTokenSecret, config.RefreshTokenExpiry, RefreshToken)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// newToken signs an HS256 token. A zero expiry means the token never expires.
func newToken(subject, issuer, jwtSecret string, expiry time.Duration, tokenType TokenType) (string, error) {
	var expiryTime *jwt.NumericDate
	if expiry > 0 {
		expiryTime = jwt.NewNumericDate(time.Now().Add(expiry))
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: expiryTime,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Type: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
