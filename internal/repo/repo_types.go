package repo

import (
	"errors"
	"time"
)

// NodeRef is the stable, opaque identity of a repository node
type NodeRef string

func (r NodeRef) String() string {
	return string(r)
}

type NodeType string

const (
	TypeFolder  NodeType = "folder"
	TypeContent NodeType = "content"
	TypeSite    NodeType = "site"
)

// Identity is the principal a repository write runs as
type Identity string

// Admin is the administrative identity. Only Admin may remove protected markers.
const Admin Identity = "system"

// Markers are named flags attached to a node
const (
	MarkerSynced         = "synced"
	MarkerSyncInProgress = "syncInProgress"
)

// protected markers can only be removed by Admin
var protectedMarkers = map[string]bool{
	MarkerSynced: true,
}

// well-known tree layout: /Company Home/Sites/<site>/documentLibrary/...
const (
	RootName    = "Company Home"
	SitesName   = "Sites"
	LibraryName = "documentLibrary"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNameExists   = errors.New("name already exists in folder")
	ErrNotASite     = errors.New("node is not contained in a site")
	ErrNotAFolder   = errors.New("node is not a folder")
	ErrNotAFile     = errors.New("node is not a file")
	ErrInvalidName  = errors.New("invalid node name")
	ErrInvalidMove  = errors.New("invalid move")
	ErrAccessDenied = errors.New("access denied")
)

type Node struct {
	Ref      NodeRef
	Parent   NodeRef // empty for the root
	Site     NodeRef // empty outside of sites
	Name     string
	Type     NodeType
	MimeType string
	Size     int64
	Version  int64
	Created  time.Time
	Modified time.Time

	contentKey string
}

// IsFolder is true for folders and site roots
func (n *Node) IsFolder() bool {
	return n.Type == TypeFolder || n.Type == TypeSite
}

func (n *Node) IsContent() bool {
	return n.Type == TypeContent
}

// dbNode is the row shape of the nodes table, timestamps stored as RFC3339 text
type dbNode struct {
	ID         string  `db:"id"`
	ParentID   *string `db:"parent_id"`
	SiteID     *string `db:"site_id"`
	Name       string  `db:"name"`
	Type       string  `db:"type"`
	MimeType   string  `db:"mime_type"`
	Size       int64   `db:"size"`
	ContentKey string  `db:"content_key"`
	Version    int64   `db:"version"`
	CreatedAt  string  `db:"created_at"`
	ModifiedAt string  `db:"modified_at"`
}

const nodeColumns = "id, parent_id, site_id, name, type, mime_type, size, content_key, version, created_at, modified_at"

func (d *dbNode) toNode() *Node {
	n := &Node{
		Ref:        NodeRef(d.ID),
		Name:       d.Name,
		Type:       NodeType(d.Type),
		MimeType:   d.MimeType,
		Size:       d.Size,
		Version:    d.Version,
		contentKey: d.ContentKey,
	}
	if d.ParentID != nil {
		n.Parent = NodeRef(*d.ParentID)
	}
	if d.SiteID != nil {
		n.Site = NodeRef(*d.SiteID)
	}
	n.Created, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	n.Modified, _ = time.Parse(time.RFC3339Nano, d.ModifiedAt)
	return n
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullable(ref NodeRef) *string {
	if ref == "" {
		return nil
	}
	s := string(ref)
	return &s
}
