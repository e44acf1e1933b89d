package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrPlaying = errors.New("dialogue is already playing")

// SpeakFunc speaks one line and returns once the avatar has finished it.
type SpeakFunc func(ctx context.Context, line string) error

// Player reads a script aloud one line at a time. Lines never overlap and a
// run cannot be aborted once started.
type Player struct {
	speak SpeakFunc

	mu      sync.Mutex
	playing bool
}

func NewPlayer(speak SpeakFunc) *Player {
	return &Player{speak: speak}
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Play speaks every non-blank line of script in order. It returns
// ErrPlaying while another run is in progress and stops at the first failed
// line.
func (p *Player) Play(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return ErrPlaying
	}
	p.playing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()

	for i, line := range ParseLines(script) {
		if err := p.speak(ctx, line); err != nil {
			return fmt.Errorf("speak line %d: %w", i+1, err)
		}
	}
	return nil
}
