package docsdk

import (
	"fmt"
	"net/url"
)

type Config struct {
	BaseURL string `mapstructure:"server_url"`
	// AccessToken is sent as a bearer token when the server has auth enabled
	AccessToken string `mapstructure:"access_token"`
	// User is sent as X-Docsync-User when the server has auth disabled
	User string `mapstructure:"user"`
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sdk: invalid server url %q", c.BaseURL)
	}
	if c.AccessToken == "" && c.User == "" {
		return ErrNoIdentity
	}
	return nil
}
