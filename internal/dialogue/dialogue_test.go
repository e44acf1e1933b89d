package dialogue

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParseLines(t *testing.T) {
	got := ParseLines("a\n\nb\n c \n")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseLines() = %q, want %q", got, want)
	}
	if got := ParseLines("  \n\t\n"); len(got) != 0 {
		t.Fatalf("ParseLines(blank) = %q, want empty", got)
	}
}

func TestParsePayload(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		label string
		lines []string
	}{
		{"array", `{"dialogue":["one"," two ",""],"label":"intro"}`, "intro", []string{"one", "two"}},
		{"script", `{"script":"x\n\n y "}`, "n8n", []string{"x", "y"}},
		{"array wins", `{"dialogue":["a"],"script":"b"}`, "n8n", []string{"a"}},
		{"neither", `{"foo":1}`, "n8n", []string{}},
		{"dialogue not array", `{"dialogue":"oops","script":"s"}`, "n8n", []string{"s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParsePayload([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if s.Label != tc.label {
				t.Fatalf("Label = %q, want %q", s.Label, tc.label)
			}
			if !reflect.DeepEqual(s.Lines, tc.lines) {
				t.Fatalf("Lines = %q, want %q", s.Lines, tc.lines)
			}
		})
	}

	if _, err := ParsePayload([]byte("not json")); err == nil {
		t.Fatalf("ParsePayload(invalid) expected error")
	}
}

func TestCatalogFind(t *testing.T) {
	e, ok := Find(" greeting ")
	if !ok || e.Label != "Greeting" {
		t.Fatalf("Find(greeting) = %+v, %v", e, ok)
	}
	if _, ok := Find("missing"); ok {
		t.Fatalf("Find(missing) should fail")
	}
}

func TestPlayerSpeaksLinesSequentially(t *testing.T) {
	var (
		p      *Player
		spoken []string
		during []bool
	)
	p = NewPlayer(func(_ context.Context, line string) error {
		during = append(during, p.Playing())
		spoken = append(spoken, line)
		return nil
	})

	if err := p.Play(context.Background(), "line1\nline2"); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !reflect.DeepEqual(spoken, []string{"line1", "line2"}) {
		t.Fatalf("spoken = %q, want [line1 line2]", spoken)
	}
	if !reflect.DeepEqual(during, []bool{true, true}) {
		t.Fatalf("playing during run = %v, want all true", during)
	}
	if p.Playing() {
		t.Fatalf("Playing() after run = true, want false")
	}
}

func TestPlayerRejectsOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := NewPlayer(func(context.Context, string) error {
		entered <- struct{}{}
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "only") }()
	<-entered

	if err := p.Play(context.Background(), "second"); !errors.Is(err, ErrPlaying) {
		t.Fatalf("overlapping Play() error = %v, want ErrPlaying", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Play() error = %v", err)
	}
}

func TestPlayerStopsOnSpeakError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	p := NewPlayer(func(context.Context, string) error {
		calls++
		return boom
	})
	if err := p.Play(context.Background(), "a\nb"); !errors.Is(err, boom) {
		t.Fatalf("Play() error = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("speak calls = %d, want 1", calls)
	}
	if p.Playing() {
		t.Fatalf("Playing() after failure = true, want false")
	}
	if err := p.Play(context.Background(), "   "); err != nil {
		t.Fatalf("Play(blank) error = %v", err)
	}
}
