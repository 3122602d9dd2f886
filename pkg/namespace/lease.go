package namespace

import (
	"sync/atomic"
	"time"
)

// lease marks the single write handle of a file. Identity is the pointer:
// a writer still owns its file iff the lease table maps the node to its
// lease.
type lease struct {
	holder string
	// expires is a UnixNano deadline, 0 for never.
	expires atomic.Int64
}

func newLease(holder string, now time.Time, timeout time.Duration) *lease {
	l := &lease{holder: holder}
	l.renew(now, timeout)
	return l
}

func (l *lease) renew(now time.Time, timeout time.Duration) {
	if timeout <= 0 {
		l.expires.Store(0)
		return
	}
	l.expires.Store(now.Add(timeout).UnixNano())
}

func (l *lease) expired(now time.Time) bool {
	deadline := l.expires.Load()
	return deadline != 0 && now.UnixNano() >= deadline
}
