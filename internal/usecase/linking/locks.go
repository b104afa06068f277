package linking

import (
	"hash/fnv"
	"sync"

	domain "licenselink/internal/domain/linking"
)

const lockStripes = 64

// groupLocks serializes link writes inside this process. A rebuild holds the
// gate exclusively; each incremental relink holds it shared plus the stripe
// of its group, so relinks of unrelated groups run side by side.
type groupLocks struct {
	gate    sync.RWMutex
	stripes [lockStripes]sync.Mutex
}

func newGroupLocks() *groupLocks {
	return &groupLocks{}
}

func (l *groupLocks) lockAll() func() {
	l.gate.Lock()
	return l.gate.Unlock
}

func (l *groupLocks) lockGroup(key domain.GroupKey) func() {
	l.gate.RLock()
	stripe := &l.stripes[stripeIndex(key)]
	stripe.Lock()
	return func() {
		stripe.Unlock()
		l.gate.RUnlock()
	}
}

func stripeIndex(key domain.GroupKey) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return h.Sum32() % lockStripes
}
