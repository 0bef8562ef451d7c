package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultQueue is the loop's queue capacity when none is given.
const DefaultQueue = 256

// Loop runs posted closures one at a time on a single goroutine. All
// session and canvas state is touched only from inside it.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = DefaultQueue
	}
	l := &Loop{queue: make(chan func(), size), done: make(chan struct{})}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		case <-l.done:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("[session] loop callback panicked")
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and drops fn once the
// loop has stopped. It must not be called from inside the loop when the
// queue may be full.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Do runs fn on the loop and waits for it. It reports false if the loop
// stopped before fn ran.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case l.queue <- func() { defer close(ran); fn() }:
	case <-l.done:
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// AfterFunc posts fn to the loop after d. Calling stop from the loop
// guarantees fn will not run, even if the timer already fired.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (stop func()) {
	var stopped atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !stopped.Load() {
				fn()
			}
		})
	})
	return func() {
		stopped.Store(true)
		t.Stop()
	}
}

// Close stops the loop and waits for the running closure to return.
// Queued closures are discarded. It must not be called from the loop.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}
