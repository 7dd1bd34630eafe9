package pathmap

import (
	"context"
	"strings"

	"github.com/openmined/docsync/internal/repo"
)

const (
	rootSegment    = "/" + repo.RootName
	librarySegment = "/" + repo.LibraryName
)

// Tree is the part of the repository the mapper reads
type Tree interface {
	Get(ctx context.Context, ref repo.NodeRef) (*repo.Node, error)
	DisplayPath(ctx context.Context, ref repo.NodeRef) (string, error)
}

// Mapper turns repository nodes into remote paths. The mapping is not invertible.
type Mapper struct {
	tree Tree
	host string
}

func New(tree Tree, host string) *Mapper {
	return &Mapper{tree: tree, host: host}
}

// RemotePath maps the node's current location, e.g.
// "/Company Home/Sites/eng/documentLibrary/a.txt" becomes "/<host>/Sites/eng/a.txt"
func (m *Mapper) RemotePath(ctx context.Context, ref repo.NodeRef) (string, error) {
	node, err := m.tree.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	parent, err := m.tree.DisplayPath(ctx, ref)
	if err != nil {
		return "", err
	}
	return m.MapDisplayPath(parent + "/" + node.Name), nil
}

// MapDisplayPath maps a full display path captured earlier, such as before a move or delete
func (m *Mapper) MapDisplayPath(p string) string {
	p = strings.Replace(p, rootSegment, "/"+m.host, 1)
	return strings.Replace(p, librarySegment, "", 1)
}
