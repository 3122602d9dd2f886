package namespace

import (
	"sync"
)

type lockMode int

const (
	shared lockMode = iota
	exclusive
)

// pathLocks hands out reader/writer locks keyed by canonical path.
//
// An operation scoped to a subtree locks every proper ancestor of the
// subtree root shared, then the root itself in the operation's mode. Locks
// are always taken root first, and a goroutine never holds two scopes at
// once, so acquisition cannot deadlock. Holding a path exclusively excludes
// every other operation touching that path or anything below it; operations
// on disjoint subtrees proceed in parallel.
//
// Entries are reference counted and dropped once unused, so locking a path
// that does not exist (yet) is fine.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.RWMutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) ref(path string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	return l
}

func (p *pathLocks) unref(path string, l *pathLock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(p.locks, path)
	}
}

// size returns the number of paths with a live lock entry.
func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

// scope is a held set of path locks. Release it exactly once.
type scope struct {
	p     *pathLocks
	paths []string
	locks []*pathLock
	mode  lockMode
}

// acquire locks the subtree rooted at segs in mode. An empty segs scopes
// the whole namespace.
func (p *pathLocks) acquire(segs []string, mode lockMode) *scope {
	s := &scope{
		p:     p,
		paths: make([]string, 0, len(segs)+1),
		locks: make([]*pathLock, 0, len(segs)+1),
		mode:  mode,
	}
	for i := 0; i <= len(segs); i++ {
		path := joinPath(segs[:i])
		l := p.ref(path)
		if i == len(segs) && mode == exclusive {
			l.Lock()
		} else {
			l.RLock()
		}
		s.paths = append(s.paths, path)
		s.locks = append(s.locks, l)
	}
	return s
}

func (s *scope) release() {
	last := len(s.locks) - 1
	for i := last; i >= 0; i-- {
		if i == last && s.mode == exclusive {
			s.locks[i].Unlock()
		} else {
			s.locks[i].RUnlock()
		}
		s.p.unref(s.paths[i], s.locks[i])
	}
}

// parentSegs returns the segments of the parent of segs. The root is its
// own parent.
func parentSegs(segs []string) []string {
	if len(segs) == 0 {
		return segs
	}
	return segs[:len(segs)-1]
}
