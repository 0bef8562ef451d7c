package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop(4)
	defer l.Close()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	require.True(t, l.Do(func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_AfterFuncRunsOnLoop(t *testing.T) {
	l := NewLoop(0)
	defer l.Close()

	var fired atomic.Int32
	l.AfterFunc(time.Millisecond, func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}

func TestLoop_StopCancelsPendingTimer(t *testing.T) {
	l := NewLoop(0)
	defer l.Close()

	var fired atomic.Int32
	var stop func()
	l.Do(func() { stop = l.AfterFunc(5*time.Millisecond, func() { fired.Add(1) }) })
	l.Do(func() { stop() })

	time.Sleep(20 * time.Millisecond)
	l.Do(func() {})
	assert.Zero(t, fired.Load())
}

func TestLoop_SurvivesPanics(t *testing.T) {
	l := NewLoop(0)
	defer l.Close()

	l.Post(func() { panic("boom") })

	assert.True(t, l.Do(func() {}))
}

func TestLoop_ClosedDropsWork(t *testing.T) {
	l := NewLoop(0)
	l.Close()
	l.Close()

	ran := false
	l.Post(func() { ran = true })

	assert.False(t, l.Do(func() { ran = true }))
	assert.False(t, ran)
}
