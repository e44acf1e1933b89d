package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

type fakeSteps struct {
	mu        sync.Mutex
	requested []string
	lines     map[string]string
	err       error
}

func (f *fakeSteps) FetchStep(_ context.Context, step string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, step)
	if f.err != nil {
		return "", f.err
	}
	return f.lines[step], nil
}

func TestStepDialogAdvancesAfterSend(t *testing.T) {
	ctrl, state := newTestController(avatar.MockFactory())
	source := &fakeSteps{lines: map[string]string{"0": "welcome", "1": "next up"}}
	steps := NewStepDialog(ctrl, source, func(string, ...any) {})
	startMock(t, ctrl)

	msg, ok := steps.LoadNext(context.Background())
	if !ok || msg != "welcome" {
		t.Fatalf("LoadNext() = %q, %v; want welcome, true", msg, ok)
	}
	if steps.Step() != 1 {
		t.Fatalf("Step() = %d, want 1", steps.Step())
	}
	msg, ok = steps.LoadNext(context.Background())
	if !ok || msg != "next up" {
		t.Fatalf("LoadNext() = %q, %v; want next up, true", msg, ok)
	}

	msgs := state.Messages()
	if len(msgs) == 0 || msgs[0].Sender != SenderClient || msgs[0].Content != "welcome" {
		t.Fatalf("messages = %+v", msgs)
	}

	steps.Reset()
	if steps.Step() != 0 {
		t.Fatalf("Step() after Reset = %d, want 0", steps.Step())
	}
}

func TestStepDialogDoesNotAdvanceOnFailure(t *testing.T) {
	ctrl, _ := newTestController(avatar.MockFactory())
	source := &fakeSteps{lines: map[string]string{"0": "welcome"}}
	steps := NewStepDialog(ctrl, source, func(string, ...any) {})

	// No avatar yet, so sending fails.
	if _, ok := steps.LoadNext(context.Background()); ok {
		t.Fatalf("LoadNext() ok = true without an avatar")
	}
	if steps.Step() != 0 {
		t.Fatalf("Step() = %d, want 0", steps.Step())
	}

	startMock(t, ctrl)
	source.err = errors.New("webhook down")
	if _, ok := steps.LoadNext(context.Background()); ok {
		t.Fatalf("LoadNext() ok = true on fetch error")
	}
	if steps.Step() != 0 {
		t.Fatalf("Step() = %d, want 0", steps.Step())
	}
}
