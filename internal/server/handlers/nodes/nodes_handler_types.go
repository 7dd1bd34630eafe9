package nodes

import "github.com/openmined/docsync/internal/repo"

// NodesRequest carries the node refs a link, unlink or pull applies to
type NodesRequest struct {
	Nodes []repo.NodeRef `json:"nodes" binding:"required,min=1,dive,required"`
}
