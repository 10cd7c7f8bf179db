package poller

import (
	"context"
	"sync"
)

// Session is a handle to a poll loop running in the background.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error
}

// Start begins polling jobID on a new goroutine. Validation and element
// binding happen before Start returns, so an empty job id yields ErrNoJobID and
// no session. Canceling ctx or calling Stop ends the loop.
func (p *Poller) Start(ctx context.Context, jobID string) (*Session, error) {
	r, err := p.prepare(jobID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		defer cancel()
		outcome, err := r.loop(ctx)
		s.mu.Lock()
		s.outcome, s.err = outcome, err
		s.mu.Unlock()
	}()
	return s, nil
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the session and waits for the loop to exit. Stopping a
// finished session is a no-op.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Wait blocks until the session stops and returns its result.
func (s *Session) Wait() (Outcome, error) {
	<-s.done
	return s.Outcome()
}

// Outcome returns the result so far; OutcomeNone while still polling.
func (s *Session) Outcome() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.err
}
