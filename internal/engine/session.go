package engine

import (
	"context"
	"sync"

	"bilancio/internal/core"
)

// Session tracks the single owner a client is viewing, swapping the
// underlying subscription when the owner changes. A delivery that arrives
// after its handle has been replaced is discarded, so the projection
// shown always belongs to the current owner.
type Session struct {
	engine *Engine

	mu         sync.Mutex
	active     *Handle
	ownerID    string
	projection core.Projection
	state      State
	lastErr    error
}

func NewSession(engine *Engine) *Session {
	return &Session{
		engine: engine,
		state:  StateUnsubscribed,
	}
}

// SetOwner switches the session to a new owner. The previous subscription
// is closed first; its in-flight deliveries can no longer reach the
// session state.
func (s *Session) SetOwner(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	handle, err := s.engine.Subscribe(ctx, ownerID)
	if err != nil {
		s.mu.Lock()
		s.ownerID = ownerID
		// The previous owner's projection must not be attributed to the
		// new owner.
		s.projection = core.Projection{}
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.active = handle
	s.ownerID = ownerID
	s.projection = core.Projection{}
	s.state = StateSubscribing
	s.lastErr = nil
	s.mu.Unlock()

	go s.forward(handle)
	return nil
}

// forward copies handle updates into the session state. The identity
// check under the mutex drops late deliveries from a replaced handle.
func (s *Session) forward(h *Handle) {
	for {
		select {
		case <-h.done:
			return
		case <-h.Updates():
			proj := h.Projection()
			state := h.State()
			lastErr := h.LastError()

			s.mu.Lock()
			if s.active != h {
				s.mu.Unlock()
				return
			}
			s.projection = proj
			s.state = state
			s.lastErr = lastErr
			s.mu.Unlock()
		}
	}
}

// Clear drops the current subscription and returns to Unsubscribed.
func (s *Session) Clear() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.ownerID = ""
	s.projection = core.Projection{}
	s.state = StateUnsubscribed
	s.lastErr = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// OwnerID returns the owner the session currently follows.
func (s *Session) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID
}

func (s *Session) Projection() core.Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projection
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
