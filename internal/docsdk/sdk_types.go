package docsdk

import "time"

type Node struct {
	Ref      string    `json:"ref"`
	Parent   string    `json:"parent,omitempty"`
	Site     string    `json:"site,omitempty"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Path     string    `json:"path,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Size     int64     `json:"size"`
	Version  int64     `json:"version"`
	Modified time.Time `json:"modified"`
}

type Site struct {
	Site    *Node `json:"site"`
	Library *Node `json:"library"`
}

type NodeList struct {
	Children []*Node `json:"children"`
}

type Profile struct {
	User        string `json:"user"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	QuotaBytes  int64  `json:"quotaBytes"`
	UsedBytes   int64  `json:"usedBytes"`
}

type RemoteUser struct {
	Linked  bool     `json:"linked"`
	Profile *Profile `json:"profile,omitempty"`
}

type AuthorizeResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type LinkStatus struct {
	Node        string    `json:"node"`
	User        string    `json:"user"`
	RemotePath  string    `json:"remotePath"`
	Rev         string    `json:"rev"`
	Hash        string    `json:"hash,omitempty"`
	Modified    time.Time `json:"modified"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LinkedUsers int       `json:"linkedUsers"`
	InProgress  bool      `json:"inProgress"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
