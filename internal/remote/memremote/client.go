package memremote

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmined/docsync/internal/remote"
)

type client struct {
	server *Server
	user   string
}

var _ remote.Client = (*client)(nil)

func (c *client) GetMetadata(_ context.Context, p string, priorHash string) (*remote.Entry, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if err := s.begin(c.user, Call{Op: OpGetMetadata, Path: p}); err != nil {
		return nil, err
	}
	acct := s.account(c.user)
	obj, ok := acct.objects[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	if obj.isDir && priorHash != "" && priorHash == folderHash(acct, p) {
		return nil, remote.ErrNotModified
	}
	return s.entry(acct, p, true), nil
}

func (c *client) PutFile(_ context.Context, p string, data []byte, overwrite bool) (*remote.Entry, error) {
	p = clean(p)
	if err := remote.CheckSize(p, int64(len(data))); err != nil {
		return nil, err
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(c.user, Call{Op: OpPutFile, Path: p, Overwrite: overwrite}); err != nil {
		return nil, err
	}
	acct := s.account(c.user)
	if existing, ok := acct.objects[p]; ok && (existing.isDir || !overwrite) {
		return nil, fmt.Errorf("%w: %s", remote.ErrConflict, p)
	}

	s.ensureParents(acct, p)
	acct.objects[p] = &object{
		data:     append([]byte(nil), data...),
		mimeType: guessMime(p),
		rev:      s.nextRev(acct, p),
		modified: s.clock.Now(),
	}
	return s.entry(acct, p, false), nil
}

func (c *client) CreateFolder(_ context.Context, p string) (*remote.Entry, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if err := s.begin(c.user, Call{Op: OpCreateFolder, Path: p}); err != nil {
		return nil, err
	}
	acct := s.account(c.user)
	if _, ok := acct.objects[p]; ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrConflict, p)
	}

	s.ensureParents(acct, p)
	acct.objects[p] = &object{isDir: true, rev: s.nextRev(acct, p), modified: s.clock.Now()}
	return s.entry(acct, p, false), nil
}

func (c *client) Move(_ context.Context, from, to string) (*remote.Entry, error) {
	return c.relocate(OpMove, from, to, true)
}

func (c *client) Copy(_ context.Context, from, to string) (*remote.Entry, error) {
	return c.relocate(OpCopy, from, to, false)
}

// relocate copies the subtree at from to to, removing the source when move is set
func (c *client) relocate(op, from, to string, move bool) (*remote.Entry, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to = clean(from), clean(to)
	if err := s.begin(c.user, Call{Op: op, Path: from + " -> " + to}); err != nil {
		return nil, err
	}
	acct := s.account(c.user)
	if _, ok := acct.objects[from]; !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, from)
	}
	if _, ok := acct.objects[to]; ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrConflict, to)
	}
	if strings.HasPrefix(to, from+"/") {
		return nil, fmt.Errorf("%w: cannot %s %s into itself", remote.ErrConflict, op, from)
	}

	s.ensureParents(acct, to)
	for _, src := range subtreePaths(acct, from) {
		obj := acct.objects[src]
		dst := to + strings.TrimPrefix(src, from)
		acct.objects[dst] = &object{
			isDir:    obj.isDir,
			data:     obj.data,
			mimeType: obj.mimeType,
			rev:      s.nextRev(acct, dst),
			modified: s.clock.Now(),
		}
		if move {
			delete(acct.objects, src)
		}
	}
	return s.entry(acct, to, false), nil
}

func (c *client) Delete(_ context.Context, p string) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if err := s.begin(c.user, Call{Op: OpDelete, Path: p}); err != nil {
		return err
	}
	acct := s.account(c.user)
	if _, ok := acct.objects[p]; !ok || p == "/" {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	for _, victim := range subtreePaths(acct, p) {
		delete(acct.objects, victim)
	}
	return nil
}

func (c *client) GetFile(_ context.Context, p string) (*remote.File, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if err := s.begin(c.user, Call{Op: OpGetFile, Path: p}); err != nil {
		return nil, err
	}
	acct := s.account(c.user)
	obj, ok := acct.objects[p]
	if !ok || obj.isDir {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	return &remote.File{
		Data:        append([]byte(nil), obj.data...),
		ContentType: obj.mimeType,
		Entry:       s.entry(acct, p, false),
	}, nil
}

func (c *client) GetUserProfile(_ context.Context) (*remote.Profile, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(c.user, Call{Op: OpGetProfile}); err != nil {
		return nil, err
	}
	var used int64
	for _, obj := range s.account(c.user).objects {
		used += int64(len(obj.data))
	}
	return &remote.Profile{
		User:        c.user,
		DisplayName: c.user,
		QuotaBytes:  defaultQuota,
		UsedBytes:   used,
	}, nil
}
