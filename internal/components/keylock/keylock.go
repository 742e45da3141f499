package keylock

import "sync"

type entry struct {
	mutex sync.Mutex
	refs  int
}

// Map hands out one mutex per key. Entries are reference counted and removed
// once nobody holds or waits on them. The zero value is ready to use.
type Map struct {
	mutex sync.Mutex
	locks map[string]*entry
}

// Lock blocks until the lock for key is held and returns the function that
// releases it.
func (m *Map) Lock(key string) (unlock func()) {
	m.mutex.Lock()
	if m.locks == nil {
		m.locks = map[string]*entry{}
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mutex.Unlock()

	e.mutex.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mutex.Unlock()

			m.mutex.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mutex.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (m *Map) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.locks)
}
