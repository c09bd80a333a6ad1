package counter

import "sync"

// roomLocks serialises load-mutate-persist sequences per room.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[string]*sync.Mutex)}
}

func (l *roomLocks) lock(roomKey string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.rooms[roomKey]
	if !ok {
		m = &sync.Mutex{}
		l.rooms[roomKey] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
