package lifecycle

import (
	"sync"
	"sync/atomic"
)

// ShutdownSignal is the shared shutdown-requested flag. Any number of request handlers may
// set it; the orchestrator waits on it. Setting it more than once is a no-op.
type ShutdownSignal struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{done: make(chan struct{})}
}

// Request sets the flag. It reports whether this call was the one that set it.
func (s *ShutdownSignal) Request() bool {
	first := s.requested.CompareAndSwap(false, true)
	if first {
		s.once.Do(func() { close(s.done) })
	}

	return first
}

func (s *ShutdownSignal) Requested() bool {
	return s.requested.Load()
}

// Done is closed once shutdown has been requested.
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.done
}
