package docsdk

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
)

const (
	v1NodesLink   = "/api/v1/nodes/link"
	v1NodesUnlink = "/api/v1/nodes/unlink"
	v1NodesPull   = "/api/v1/nodes/pull"
	v1NodeStatus  = "/api/v1/nodes/{ref}/status"
	v1SyncPoll    = "/api/v1/sync/poll"
)

// NodesAPI manages the caller's sync links
type NodesAPI struct {
	client *req.Client
}

func (n *NodesAPI) Link(ctx context.Context, refs ...string) error {
	return n.post(ctx, v1NodesLink, "link", refs)
}

func (n *NodesAPI) Unlink(ctx context.Context, refs ...string) error {
	return n.post(ctx, v1NodesUnlink, "unlink", refs)
}

func (n *NodesAPI) Pull(ctx context.Context, refs ...string) error {
	return n.post(ctx, v1NodesPull, "pull", refs)
}

func (n *NodesAPI) post(ctx context.Context, url, op string, refs []string) error {
	if len(refs) == 0 {
		return fmt.Errorf("%s: no nodes given", op)
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string][]string{"nodes": refs}).
		Post(url)

	return handleAPIError(resp, err, op)
}

func (n *NodesAPI) Status(ctx context.Context, ref string) (apiResp *LinkStatus, err error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetSuccessResult(&apiResp).
		Get(v1NodeStatus)

	if err := handleAPIError(resp, err, "node status"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

type SyncAPI struct {
	client *req.Client
}

// Poll runs one poll pass on the server and waits for it
func (s *SyncAPI) Poll(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Post(v1SyncPoll)

	return handleAPIError(resp, err, "poll")
}
