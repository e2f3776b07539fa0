package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskLocker_SerializesSameTask(t *testing.T) {
	locker := NewTaskLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(7)
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locker.size())
}

func TestTaskLocker_IndependentTasks(t *testing.T) {
	locker := NewTaskLocker()

	first := locker.Lock(1)
	second := locker.Lock(2)
	assert.Equal(t, 2, locker.size())

	first()
	first()
	second()
	assert.Zero(t, locker.size())
}
