package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

const expireStopTimeout = 15 * time.Second

// Manager tracks session slots and expires the idle ones.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	deps              Deps
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(deps Deps, inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		deps:              deps,
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) Create(userID string) *Session {
	s := New(uuid.NewString(), userID, m.deps)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Touch(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.Touch()
	return nil
}

// Remove stops the session's avatar and forgets the slot.
func (m *Manager) Remove(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	_ = s.Controller.Stop(ctx)
	s.Flush()
	return s, nil
}

// ActiveCount counts slots whose avatar is connecting or connected.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.State.SessionState() != StateInactive {
			count++
		}
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

// Close stops every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		_ = s.Controller.Stop(ctx)
		s.Flush()
	}
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt()) < m.inactivityTimeout {
			continue
		}
		// An attached UI keeps the slot alive.
		if s.State.Subscribers() > 0 {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		ctx, cancel := context.WithTimeout(context.Background(), expireStopTimeout)
		_ = s.Controller.Stop(ctx)
		cancel()
		if hook != nil {
			hook(s)
		}
	}
}
