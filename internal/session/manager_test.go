package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/transcript"
)

func testDeps() Deps {
	return Deps{
		Factory: avatar.MockFactory(),
		Logf:    func(string, ...any) {},
	}
}

func TestManagerCreateGetRemove(t *testing.T) {
	m := NewManager(testDeps(), time.Minute)
	s := m.Create("u1")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.State.SessionState() != StateInactive {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := got.Controller.Start(context.Background(), avatar.StartAvatarRequest{}, "tok"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := m.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}

	removed, err := m.Remove(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed.State.SessionState() != StateInactive {
		t.Fatalf("removed session should be stopped")
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
	}
	if _, err := m.Remove(context.Background(), s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(testDeps(), 30*time.Millisecond)
	var expired atomic.Int32
	m.SetExpireHook(func(*Session) { expired.Add(1) })
	s := m.Create("u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	waitFor(t, func() bool {
		_, err := m.Get(s.ID)
		return errors.Is(err, ErrNotFound)
	})
	waitFor(t, func() bool { return expired.Load() == 1 })
}

func TestManagerJanitorKeepsSessionReceivingEvents(t *testing.T) {
	m := NewManager(testDeps(), 80*time.Millisecond)
	s := m.Create("u1")
	client, err := s.Controller.Start(context.Background(), avatar.StartAvatarRequest{}, "tok")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mock := client.(*avatar.MockClient)

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		mock.Emit(avatar.Event{Type: avatar.EventUserTalkingMessage, Message: "still talking"})
		m.expireInactive()
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("Get() error = %v, want live session", err)
	}
	if got := s.State.SessionState(); got != StateConnected {
		t.Fatalf("SessionState = %q, want connected", got)
	}
}

func TestManagerJanitorKeepsSubscribedSession(t *testing.T) {
	m := NewManager(testDeps(), 20*time.Millisecond)
	s := m.Create("u1")
	_, unsubscribe := s.State.Subscribe()

	time.Sleep(40 * time.Millisecond)
	m.expireInactive()
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("Get() error = %v, want session kept while subscribed", err)
	}

	unsubscribe()
	m.expireInactive()
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after unsubscribe error = %v, want ErrNotFound", err)
	}
}

func TestManagerTouchKeepsSessionAlive(t *testing.T) {
	m := NewManager(testDeps(), time.Minute)
	s := m.Create("u1")
	before := s.LastActivityAt()
	time.Sleep(2 * time.Millisecond)
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !s.LastActivityAt().After(before) {
		t.Fatalf("LastActivityAt not advanced")
	}
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSessionArchivesCompletedMessages(t *testing.T) {
	store := transcript.NewInMemoryStore()
	deps := testDeps()
	deps.Archive = store
	m := NewManager(deps, time.Minute)
	s := m.Create("u1")

	if _, err := s.Controller.Start(context.Background(), avatar.StartAvatarRequest{}, "tok"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Controller.SendText(context.Background(), "hello there"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	s.Flush()

	records, err := store.Recent(context.Background(), s.ID, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	bySender := map[string]string{}
	for _, r := range records {
		bySender[r.Sender] = r.Content
	}
	if bySender["CLIENT"] != "hello there" || bySender["AVATAR"] != "hello there" {
		t.Fatalf("records = %+v", records)
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(testDeps(), time.Minute)
	s := m.Create("u1")
	if _, err := s.Controller.Start(context.Background(), avatar.StartAvatarRequest{}, "tok"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Close(context.Background())
	if s.State.SessionState() != StateInactive {
		t.Fatalf("session should be stopped after Close")
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Close error = %v, want ErrNotFound", err)
	}
}
