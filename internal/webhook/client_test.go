package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

func TestFetchDialogueRelaysNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("workflow inactive"))
	}))
	defer ts.Close()

	c := NewClient(Config{DialogueURL: ts.URL}, nil)
	raw, err := c.FetchDialogue(context.Background())
	if err != nil {
		t.Fatalf("FetchDialogue() error = %v", err)
	}
	if raw.Status != http.StatusBadGateway || string(raw.Body) != "workflow inactive" {
		t.Fatalf("raw = %d %q", raw.Status, raw.Body)
	}

	_, err = c.FetchScript(context.Background())
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusBadGateway {
		t.Fatalf("FetchScript() error = %v, want status error 502", err)
	}
}

func TestFetchDialogueRejectsOversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBody+1))
	}))
	defer ts.Close()

	c := NewClient(Config{DialogueURL: ts.URL}, nil)
	if _, err := c.FetchDialogue(context.Background()); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("FetchDialogue() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestFetchDialogueAcceptsBodyAtLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBody))
	}))
	defer ts.Close()

	c := NewClient(Config{DialogueURL: ts.URL}, nil)
	raw, err := c.FetchDialogue(context.Background())
	if err != nil {
		t.Fatalf("FetchDialogue() error = %v", err)
	}
	if len(raw.Body) != maxBody {
		t.Fatalf("len(Body) = %d, want %d", len(raw.Body), maxBody)
	}
}

func TestFetchDialogueNotConfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if _, err := c.FetchDialogue(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("FetchDialogue() error = %v, want ErrNotConfigured", err)
	}
	if _, err := c.FetchStep(context.Background(), "1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("FetchStep() error = %v, want ErrNotConfigured", err)
	}
	if _, err := c.FetchReply(context.Background(), "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("FetchReply() error = %v, want ErrNotConfigured", err)
	}
}

func TestFetchStepForwardsStep(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("flow") != "intro" {
			http.Error(w, "lost existing query", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "line " + r.URL.Query().Get("step"), "extra": "x"})
	}))
	defer ts.Close()

	c := NewClient(Config{StepURL: ts.URL + "?flow=intro"}, nil)
	msg, err := c.FetchStep(context.Background(), "3")
	if err != nil {
		t.Fatalf("FetchStep() error = %v", err)
	}
	if msg != "line 3" {
		t.Fatalf("message = %q, want %q", msg, "line 3")
	}
	msg, err = c.FetchStep(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchStep() error = %v", err)
	}
	if msg != "line 0" {
		t.Fatalf("message = %q, want default step 0", msg)
	}
}

func TestExtractReply(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`"plain"`, "plain"},
		{`{"reply":"r","message":"m"}`, "r"},
		{`{"message":"m"}`, "m"},
		{`{"other":1}`, ""},
		{`[1,2]`, ""},
	}
	for _, tc := range cases {
		got, err := extractReply([]byte(tc.body))
		if err != nil {
			t.Fatalf("extractReply(%s) error = %v", tc.body, err)
		}
		if got != tc.want {
			t.Fatalf("extractReply(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestNotifierPostsAndSwallowsFailures(t *testing.T) {
	var (
		mu    sync.Mutex
		notes []Notification
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		_ = json.NewDecoder(r.Body).Decode(&n)
		mu.Lock()
		notes = append(notes, n)
		mu.Unlock()
		if n.Sender == "AVATAR" {
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	var (
		logMu sync.Mutex
		logs  []string
	)
	n := NewNotifier(ts.URL, nil, NotifierOptions{Logf: func(format string, args ...any) {
		logMu.Lock()
		logs = append(logs, fmt.Sprintf(format, args...))
		logMu.Unlock()
	}})
	n.Notify("hello", "CLIENT")
	n.Notify("hi back", "AVATAR")
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(notes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notes))
	}
	logMu.Lock()
	defer logMu.Unlock()
	if len(logs) != 1 {
		t.Fatalf("logged failures = %v, want exactly one", logs)
	}
}

func TestNotifierWithoutURLIsNoop(t *testing.T) {
	n := NewNotifier("", nil, NotifierOptions{})
	n.Notify("x", "CLIENT")
	n.Wait()

	var nilNotifier *Notifier
	nilNotifier.Notify("x", "CLIENT")
	nilNotifier.Wait()
}
