package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrInvalidVerifier = errors.New("invalid verifier")

const (
	defaultPendingTTL = 15 * time.Minute
	maxPending        = 4096
)

// RequestToken is the temporary token pair handed out with the authorize URL
type RequestToken struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// AccessToken is the long lived token pair stored as Credentials
type AccessToken struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// Authorizer runs the two step account linking handshake
type Authorizer interface {
	AuthorizeURL(ctx context.Context, user, callbackURL string) (*RequestToken, error)
	Exchange(ctx context.Context, rt RequestToken, verifier string) (*AccessToken, error)
}

type pendingRequest struct {
	user   string
	secret string
}

// KeyPairAuthorizer issues request tokens locally and accepts the user's remote key pair
// as the verifier, formatted as "KEY:SECRET".
type KeyPairAuthorizer struct {
	baseURL string
	pending *expirable.LRU[string, pendingRequest]
}

func NewKeyPairAuthorizer(baseURL string, ttl time.Duration) *KeyPairAuthorizer {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &KeyPairAuthorizer{
		baseURL: baseURL,
		pending: expirable.NewLRU[string, pendingRequest](maxPending, nil, ttl),
	}
}

func (a *KeyPairAuthorizer) AuthorizeURL(_ context.Context, user, callbackURL string) (*RequestToken, error) {
	if user == "" {
		return nil, fmt.Errorf("user required")
	}

	rt := &RequestToken{
		Token:  uuid.NewString(),
		Secret: uuid.NewString(),
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse authorize url: %w", err)
	}
	q := u.Query()
	q.Set("oauth_token", rt.Token)
	if callbackURL != "" {
		q.Set("oauth_callback", callbackURL)
	}
	u.RawQuery = q.Encode()
	rt.URL = u.String()

	a.pending.Add(rt.Token, pendingRequest{user: user, secret: rt.Secret})
	return rt, nil
}

func (a *KeyPairAuthorizer) Exchange(_ context.Context, rt RequestToken, verifier string) (*AccessToken, error) {
	req, ok := a.pending.Get(rt.Token)
	if !ok || req.secret != rt.Secret {
		return nil, fmt.Errorf("%w: request token unknown or expired", ErrAuthExpired)
	}

	key, secret, found := strings.Cut(verifier, ":")
	if !found || key == "" || secret == "" {
		return nil, fmt.Errorf("%w: expected KEY:SECRET", ErrInvalidVerifier)
	}

	a.pending.Remove(rt.Token)
	return &AccessToken{Token: key, Secret: secret}, nil
}
