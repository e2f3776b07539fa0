package service

import "sync"

// TaskLocker serializes work per task id. Entries are dropped once no
// goroutine holds or waits for them.
type TaskLocker struct {
	mu    sync.Mutex
	locks map[uint]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func NewTaskLocker() *TaskLocker {
	return &TaskLocker{locks: make(map[uint]*taskLock)}
}

// Lock blocks until the task is free and returns the release function.
func (l *TaskLocker) Lock(taskID uint) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[taskID]
	if !ok {
		entry = &taskLock{}
		l.locks[taskID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, taskID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *TaskLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
