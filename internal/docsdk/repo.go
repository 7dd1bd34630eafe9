package docsdk

import (
	"context"

	"github.com/imroc/req/v3"
)

const (
	v1RepoSites    = "/api/v1/repo/sites"
	v1RepoResolve  = "/api/v1/repo/resolve"
	v1RepoNode     = "/api/v1/repo/nodes/{ref}"
	v1RepoChildren = "/api/v1/repo/nodes/{ref}/children"
	v1RepoFolders  = "/api/v1/repo/nodes/{ref}/folders"
	v1RepoFile     = "/api/v1/repo/nodes/{ref}/files/{name}"
	v1RepoContent  = "/api/v1/repo/nodes/{ref}/content"
	v1RepoMove     = "/api/v1/repo/nodes/{ref}/move"
	v1RepoCopy     = "/api/v1/repo/nodes/{ref}/copy"
)

// RepoAPI edits the content repository directly
type RepoAPI struct {
	client *req.Client
}

func (r *RepoAPI) Sites(ctx context.Context) ([]*Node, error) {
	var apiResp NodeList
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(v1RepoSites)

	if err := handleAPIError(resp, err, "list sites"); err != nil {
		return nil, err
	}
	return apiResp.Children, nil
}

func (r *RepoAPI) CreateSite(ctx context.Context, name string) (apiResp *Site, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetSuccessResult(&apiResp).
		Post(v1RepoSites)

	if err := handleAPIError(resp, err, "create site"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

// Resolve finds a node by its full display path
func (r *RepoAPI) Resolve(ctx context.Context, path string) (*Node, error) {
	return r.node(r.client.R().SetContext(ctx).SetQueryParam("path", path), "resolve", v1RepoResolve)
}

func (r *RepoAPI) Get(ctx context.Context, ref string) (*Node, error) {
	return r.node(r.client.R().SetContext(ctx).SetPathParam("ref", ref), "get node", v1RepoNode)
}

func (r *RepoAPI) node(request *req.Request, op, url string) (apiResp *Node, err error) {
	resp, err := request.SetSuccessResult(&apiResp).Get(url)
	if err := handleAPIError(resp, err, op); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RepoAPI) Children(ctx context.Context, ref string) ([]*Node, error) {
	var apiResp NodeList
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetSuccessResult(&apiResp).
		Get(v1RepoChildren)

	if err := handleAPIError(resp, err, "list children"); err != nil {
		return nil, err
	}
	return apiResp.Children, nil
}

func (r *RepoAPI) CreateFolder(ctx context.Context, parent, name string) (apiResp *Node, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", parent).
		SetBody(map[string]string{"name": name}).
		SetSuccessResult(&apiResp).
		Post(v1RepoFolders)

	if err := handleAPIError(resp, err, "create folder"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RepoAPI) CreateFile(ctx context.Context, parent, name string, data []byte, mimeType string) (apiResp *Node, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"ref": parent, "name": name}).
		SetContentType(mimeType).
		SetBodyBytes(data).
		SetRetryCount(0).
		SetSuccessResult(&apiResp).
		Put(v1RepoFile)

	if err := handleAPIError(resp, err, "create file"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RepoAPI) ReadContent(ctx context.Context, ref string) ([]byte, string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		Get(v1RepoContent)

	if err := handleAPIError(resp, err, "read content"); err != nil {
		return nil, "", err
	}
	return resp.Bytes(), resp.GetContentType(), nil
}

func (r *RepoAPI) WriteContent(ctx context.Context, ref string, data []byte, mimeType string) (apiResp *Node, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetContentType(mimeType).
		SetBodyBytes(data).
		SetRetryCount(0).
		SetSuccessResult(&apiResp).
		Put(v1RepoContent)

	if err := handleAPIError(resp, err, "write content"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

// Move reparents ref. An empty name keeps the current one.
func (r *RepoAPI) Move(ctx context.Context, ref, parent, name string) (apiResp *Node, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetBody(map[string]string{"parent": parent, "name": name}).
		SetSuccessResult(&apiResp).
		Post(v1RepoMove)

	if err := handleAPIError(resp, err, "move"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RepoAPI) Copy(ctx context.Context, ref, parent string) (apiResp *Node, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		SetBody(map[string]string{"parent": parent}).
		SetSuccessResult(&apiResp).
		Post(v1RepoCopy)

	if err := handleAPIError(resp, err, "copy"); err != nil {
		return nil, err
	}
	return apiResp, nil
}

func (r *RepoAPI) Delete(ctx context.Context, ref string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		Delete(v1RepoNode)

	return handleAPIError(resp, err, "delete")
}
