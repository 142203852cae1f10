package search

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Stopper is the cooperative shutdown flag. Signals and group aborts set it
// from other goroutines. The search loop checks it before every candidate;
// the shutdown itself runs in ordinary control flow.
type Stopper struct {
	done     chan struct{}
	quit     chan struct{}
	once     sync.Once
	quitOnce sync.Once

	mu    sync.Mutex
	sig   os.Signal
	cause error
	sigc  chan os.Signal
}

// NewStopper returns a stopper that has not fired.
func NewStopper() *Stopper {
	return &Stopper{done: make(chan struct{}), quit: make(chan struct{})}
}

// Notify fires the stopper on the first of sigs the process receives.
func (s *Stopper) Notify(sigs ...os.Signal) {
	s.mu.Lock()
	s.sigc = make(chan os.Signal, 1)
	sigc := s.sigc
	s.mu.Unlock()

	signal.Notify(sigc, sigs...)
	go func() {
		select {
		case sig := <-sigc:
			s.Raise(sig)
		case <-s.done:
		case <-s.quit:
		}
	}()
}

// Raise fires the stopper as if sig had been received.
func (s *Stopper) Raise(sig os.Signal) { s.fire(sig, nil) }

// Fail fires the stopper with a cause other than a signal.
func (s *Stopper) Fail(err error) { s.fire(nil, err) }

// Watch fires the stopper with cause once ch is closed.
func (s *Stopper) Watch(ch <-chan struct{}, cause error) {
	go func() {
		select {
		case <-ch:
			s.Fail(cause)
		case <-s.done:
		case <-s.quit:
		}
	}()
}

func (s *Stopper) fire(sig os.Signal, cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.sig, s.cause = sig, cause
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once the stopper fired.
func (s *Stopper) Done() <-chan struct{} { return s.done }

// Stopped reports whether the stopper fired.
func (s *Stopper) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Signal returns the signal that fired the stopper, if any.
func (s *Stopper) Signal() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sig
}

// Cause returns the error that fired the stopper, if it was not a signal.
func (s *Stopper) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Interrupted reports whether the stopper fired on SIGINT, the one stop that
// ends a run successfully.
func (s *Stopper) Interrupted() bool { return s.Signal() == os.Interrupt }

// SignalMessage describes a terminating signal other than SIGINT.
func (s *Stopper) SignalMessage() string {
	sig := s.Signal()
	if sig == nil {
		return ""
	}
	num := -1
	if n, ok := sig.(syscall.Signal); ok {
		num = int(n)
	}
	return fmt.Sprintf("Caught signal '%s' (%d), stopping...", sig, num)
}

// Close stops listening for signals and releases the watcher goroutines.
func (s *Stopper) Close() {
	s.mu.Lock()
	if s.sigc != nil {
		signal.Stop(s.sigc)
	}
	s.mu.Unlock()
	s.quitOnce.Do(func() { close(s.quit) })
}
