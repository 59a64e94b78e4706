package service

import "sync"

// UserLocks serializes cart mutations of one user inside this process.
// Row locks in the database cover concurrent writers in other processes.
type UserLocks struct {
	locks sync.Map // map[uint]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{}
}

// lock acquires the per-user mutex and returns its unlock func
func (l *UserLocks) lock(userID uint) func() {
	if v, ok := l.locks.Load(userID); ok {
		m := v.(*sync.Mutex)
		m.Lock()
		return m.Unlock
	}

	m := &sync.Mutex{}
	actual, _ := l.locks.LoadOrStore(userID, m)
	mtx := actual.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}
