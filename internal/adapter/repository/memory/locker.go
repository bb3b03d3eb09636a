package memory

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Locker is a process-local usecase.Locker.
type Locker struct {
	mu    sync.Mutex
	seq   int
	held  map[string]lease
	clock func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), clock: time.Now}
}

// TryLock acquires key unless an unexpired lease exists.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	l.seq++
	token := strconv.Itoa(l.seq)
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Unlock releases key if token still owns it.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
