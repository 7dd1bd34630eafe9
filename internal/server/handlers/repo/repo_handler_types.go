package repo

import (
	"time"

	"github.com/openmined/docsync/internal/repo"
)

type NodeResponse struct {
	Ref      repo.NodeRef  `json:"ref"`
	Parent   repo.NodeRef  `json:"parent,omitempty"`
	Site     repo.NodeRef  `json:"site,omitempty"`
	Name     string        `json:"name"`
	Type     repo.NodeType `json:"type"`
	Path     string        `json:"path,omitempty"`
	MimeType string        `json:"mimeType,omitempty"`
	Size     int64         `json:"size"`
	Version  int64         `json:"version"`
	Modified time.Time     `json:"modified"`
}

func toResponse(n *repo.Node) *NodeResponse {
	return &NodeResponse{
		Ref:      n.Ref,
		Parent:   n.Parent,
		Site:     n.Site,
		Name:     n.Name,
		Type:     n.Type,
		MimeType: n.MimeType,
		Size:     n.Size,
		Version:  n.Version,
		Modified: n.Modified,
	}
}

type SiteRequest struct {
	Name string `json:"name" binding:"required"`
}

type SiteResponse struct {
	Site    *NodeResponse `json:"site"`
	Library *NodeResponse `json:"library"`
}

type FolderRequest struct {
	Name string `json:"name" binding:"required"`
}

type MoveRequest struct {
	Parent repo.NodeRef `json:"parent" binding:"required"`
	Name   string       `json:"name"`
}

type CopyRequest struct {
	Parent repo.NodeRef `json:"parent" binding:"required"`
}

type ChildrenResponse struct {
	Children []*NodeResponse `json:"children"`
}
