package session

import "sync"

// Locker сериализует обработку сообщений одного пользователя.
// Блокировки разных пользователей не зависят друг от друга.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker создаёт пустой набор блокировок.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*userLock)}
}

// Lock захватывает блокировку пользователя и возвращает функцию её освобождения.
// Запись удаляется, когда блокировку больше никто не ждёт.
func (l *Locker) Lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ul.mu.Unlock()

			l.mu.Lock()
			ul.refs--
			if ul.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

// Len возвращает количество пользователей, для которых сейчас есть запись блокировки.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
