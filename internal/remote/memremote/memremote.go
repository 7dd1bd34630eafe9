package memremote

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/docsync/internal/remote"
)

// Remote operation names as recorded in the call log
const (
	OpGetMetadata  = "getMetadata"
	OpPutFile      = "putFile"
	OpCreateFolder = "createFolder"
	OpMove         = "move"
	OpCopy         = "copy"
	OpDelete       = "delete"
	OpGetFile      = "getFile"
	OpGetProfile   = "getUserProfile"
)

const defaultQuota = 2 << 30

// Call is one recorded client operation
type Call struct {
	Op        string
	Path      string
	Overwrite bool
}

type object struct {
	isDir    bool
	data     []byte
	mimeType string
	rev      string
	modified time.Time
}

type account struct {
	objects map[string]*object
	revs    map[string]int
}

func newAccount(now time.Time) *account {
	return &account{
		objects: map[string]*object{"/": {isDir: true, rev: "rev0", modified: now}},
		revs:    make(map[string]int),
	}
}

// Server is an in-memory remote holding one flat path namespace per user.
// Every path gets its own revision sequence: rev1, rev2, ...
type Server struct {
	clock clockwork.Clock

	mu       sync.Mutex
	accounts map[string]*account
	calls    map[string][]Call
	failures map[string]map[string][]error
}

func New(clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Server{
		clock:    clock,
		accounts: make(map[string]*account),
		calls:    make(map[string][]Call),
		failures: make(map[string]map[string][]error),
	}
}

// Dial opens a client on user's account. It matches remote.DialFunc.
func (s *Server) Dial(_ context.Context, user string, _ remote.Credentials) (remote.Client, error) {
	return &client{server: s, user: user}, nil
}

// Calls returns the operations issued for user, oldest first
func (s *Server) Calls(user string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls[user]...)
}

func (s *Server) ResetCalls(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, user)
}

// FailNext makes the next op call of user fail with err
func (s *Server) FailNext(user, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[user] == nil {
		s.failures[user] = make(map[string][]error)
	}
	s.failures[user][op] = append(s.failures[user][op], err)
}

// SetFile writes a file as an outside party would. It is not recorded in the call log.
func (s *Server) SetFile(user, p string, data []byte) *remote.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(user)
	p = clean(p)
	s.ensureParents(acct, p)
	acct.objects[p] = &object{data: data, mimeType: guessMime(p), rev: s.nextRev(acct, p), modified: s.clock.Now()}
	return s.entry(acct, p, false)
}

// Entry describes p without recording a call, nil when missing
func (s *Server) Entry(user, p string) *remote.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(user)
	if _, ok := acct.objects[clean(p)]; !ok {
		return nil
	}
	return s.entry(acct, clean(p), true)
}

// Content returns the bytes stored at p
func (s *Server) Content(user, p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.account(user).objects[clean(p)]
	if !ok || obj.isDir {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

func (s *Server) account(user string) *account {
	acct, ok := s.accounts[user]
	if !ok {
		acct = newAccount(s.clock.Now())
		s.accounts[user] = acct
	}
	return acct
}

// begin records a call and pops an injected failure. Callers hold s.mu.
func (s *Server) begin(user string, call Call) error {
	s.calls[user] = append(s.calls[user], call)
	queued := s.failures[user][call.Op]
	if len(queued) == 0 {
		return nil
	}
	s.failures[user][call.Op] = queued[1:]
	return queued[0]
}

func (s *Server) nextRev(acct *account, p string) string {
	acct.revs[p]++
	return fmt.Sprintf("rev%d", acct.revs[p])
}

func (s *Server) ensureParents(acct *account, p string) {
	var missing []string
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		if _, ok := acct.objects[dir]; ok {
			break
		}
		missing = append(missing, dir)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		acct.objects[missing[i]] = &object{isDir: true, rev: s.nextRev(acct, missing[i]), modified: s.clock.Now()}
	}
}

// childPaths lists the direct children of dir in name order
func childPaths(acct *account, dir string) []string {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var out []string
	for p := range acct.objects {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// subtreePaths lists p and everything below it
func subtreePaths(acct *account, p string) []string {
	out := []string{p}
	for other := range acct.objects {
		if strings.HasPrefix(other, p+"/") {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

// folderHash summarizes the tree below dir: names with file revs and nested folder hashes
func folderHash(acct *account, dir string) string {
	h := md5.New()
	for _, child := range childPaths(acct, dir) {
		obj := acct.objects[child]
		sig := obj.rev
		if obj.isDir {
			sig = folderHash(acct, child)
		}
		fmt.Fprintf(h, "%s\x00%s\n", path.Base(child), sig)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) entry(acct *account, p string, withChildren bool) *remote.Entry {
	obj := acct.objects[p]
	e := &remote.Entry{
		Path:     p,
		IsDir:    obj.isDir,
		Rev:      obj.rev,
		Size:     int64(len(obj.data)),
		MimeType: obj.mimeType,
		Modified: obj.modified,
	}
	if obj.isDir {
		e.Hash = folderHash(acct, p)
		if withChildren {
			for _, child := range childPaths(acct, p) {
				e.Children = append(e.Children, s.entry(acct, child, false))
			}
		}
	}
	return e
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func guessMime(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
