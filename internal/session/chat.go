package session

import (
	"context"
	"strings"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

// SendText records a typed client message and has the avatar respond to it.
func (c *Controller) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	client := c.Client()
	if client == nil {
		return ErrNotStarted
	}
	c.state.AddClientMessage(text)
	return c.speak(ctx, client, avatar.SpeakRequest{
		Text:     text,
		TaskType: avatar.TaskTypeTalk,
		TaskMode: avatar.TaskModeAsync,
	})
}

// RepeatSync has the avatar say text verbatim and returns once it has.
func (c *Controller) RepeatSync(ctx context.Context, text string) error {
	client := c.Client()
	if client == nil {
		return ErrNotStarted
	}
	return c.speak(ctx, client, avatar.SpeakRequest{
		Text:     text,
		TaskType: avatar.TaskTypeRepeat,
		TaskMode: avatar.TaskModeSync,
	})
}

func (c *Controller) speak(ctx context.Context, client avatar.Client, req avatar.SpeakRequest) error {
	started := time.Now()
	err := client.Speak(ctx, req)
	c.metrics.ObserveSpeakLatency(time.Since(started))
	return err
}
