package ffmpeg

import "sync"

// Terminators tracks how to stop every child process that is currently
// running, so shutdown can reap them all.
type Terminators struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func()
}

// NewTerminators creates an empty registry.
func NewTerminators() *Terminators {
	return &Terminators{fns: make(map[uint64]func())}
}

// Register adds fn and returns a function that removes it again. The
// returned function is safe to call more than once.
func (t *Terminators) Register(fn func()) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.fns[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.fns, id)
		t.mu.Unlock()
	}
}

// TerminateAll calls every registered terminator and returns how many ran.
// Terminators stay registered until their owner removes them.
func (t *Terminators) TerminateAll() int {
	t.mu.Lock()
	fns := make([]func(), 0, len(t.fns))
	for _, fn := range t.fns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Len returns the number of registered terminators.
func (t *Terminators) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fns)
}
