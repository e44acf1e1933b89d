package session

import (
	"sync"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

type registration struct {
	event avatar.EventType
	id    avatar.ListenerID
}

// subscriptions owns a set of handlers registered on one client and removes
// all of them in a single Close.
type subscriptions struct {
	client avatar.Client

	mu     sync.Mutex
	regs   []registration
	closed bool
}

func subscribe(client avatar.Client) *subscriptions {
	return &subscriptions{client: client}
}

func (s *subscriptions) on(t avatar.EventType, h avatar.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.regs = append(s.regs, registration{event: t, id: s.client.On(t, h)})
}

// Close unregisters every handler. Safe on nil and when repeated.
func (s *subscriptions) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, r := range s.regs {
		s.client.Off(r.event, r.id)
	}
	s.regs = nil
}
