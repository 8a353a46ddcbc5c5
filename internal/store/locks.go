package store

import "sync"

// RefLocks serializes read-modify-write cycles per acta ref. The client facade
// and the sync coordinator share one instance through the Repository.
type RefLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (l *RefLocks) Lock(ref string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*refLock{}
	}
	rl, ok := l.locks[ref]
	if !ok {
		rl = &refLock{}
		l.locks[ref] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, ref)
		}
		l.mu.Unlock()
	}
}
