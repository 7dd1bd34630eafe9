package docsdk

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/docsync/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Docsync-Version"
	HeaderUser      = "X-Docsync-User"
)

var UserAgent = fmt.Sprintf("DocSync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// DocSync is the client of the docsync API
type DocSync struct {
	client *req.Client
	Remote *RemoteAPI
	Nodes  *NodesAPI
	Sync   *SyncAPI
	Repo   *RepoAPI
	Auth   *AuthAPI
}

func New(config *Config) (*DocSync, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetTimeout(5*time.Minute).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500 * time.Millisecond).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			// only reads are safe to repeat
			return err != nil && resp != nil && resp.Request != nil && resp.Request.Method == http.MethodGet
		})

	if config.AccessToken != "" {
		client.SetCommonBearerAuthToken(config.AccessToken)
	}
	if config.User != "" {
		client.SetCommonHeader(HeaderUser, config.User)
	}

	return &DocSync{
		client: client,
		Remote: &RemoteAPI{client: client},
		Nodes:  &NodesAPI{client: client},
		Sync:   &SyncAPI{client: client},
		Repo:   &RepoAPI{client: client},
		Auth:   &AuthAPI{client: client},
	}, nil
}
