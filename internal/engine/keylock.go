package engine

import (
	"sort"
	"sync"

	"github.com/openmined/docsync/internal/metastore"
	"github.com/openmined/docsync/internal/repo"
)

type linkKey struct {
	node repo.NodeRef
	user string
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedLocks serializes writers of the same (node, user) link
type keyedLocks struct {
	mu    sync.Mutex
	locks map[linkKey]*refLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[linkKey]*refLock)}
}

// Lock blocks until the key is free and returns its release func
func (k *keyedLocks) Lock(node repo.NodeRef, user string) func() {
	key := linkKey{node, user}

	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func sortedKeys(m map[string]metastore.LinkRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
