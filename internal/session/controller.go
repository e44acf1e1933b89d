package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/observability"
)

var (
	ErrAlreadyActive = errors.New("there is already an active session")
	ErrTokenRequired = errors.New("token is required")
	ErrNotStarted    = errors.New("avatar is not initialized")
)

const disconnectStopTimeout = 15 * time.Second

type ControllerOptions struct {
	Logf    func(format string, args ...any)
	Metrics *observability.Metrics
	// OnActivity runs on every provider event.
	OnActivity func()
}

// Controller owns the single avatar client of a session and drives its
// lifecycle: INACTIVE -> CONNECTING -> CONNECTED -> INACTIVE.
type Controller struct {
	state      *State
	factory    avatar.Factory
	logf       func(format string, args ...any)
	metrics    *observability.Metrics
	onActivity func()

	mu          sync.Mutex
	client      avatar.Client
	subs        *subscriptions
	cancelStart context.CancelFunc
	voiceChat   *VoiceChat
}

func NewController(state *State, factory avatar.Factory, opts ControllerOptions) *Controller {
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Controller{
		state:      state,
		factory:    factory,
		logf:       opts.Logf,
		metrics:    opts.Metrics,
		onActivity: opts.OnActivity,
	}
}

// Client returns the session's avatar client, or nil before the first Start.
func (c *Controller) Client() avatar.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// Start opens an avatar session. It fails without side effects when a
// session is already connecting or connected, or when no client exists yet
// and token is empty.
func (c *Controller) Start(ctx context.Context, req avatar.StartAvatarRequest, token string) (avatar.Client, error) {
	c.mu.Lock()
	if c.state.SessionState() != StateInactive {
		c.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	if c.client == nil {
		if token == "" {
			c.mu.Unlock()
			return nil, ErrTokenRequired
		}
		c.client = c.factory(token)
	}
	if c.client == nil {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	client := c.client

	c.state.setSessionState(StateConnecting)
	subs := c.registerHandlers(client)
	c.subs = subs
	startCtx, cancel := context.WithCancel(ctx)
	c.cancelStart = cancel
	c.mu.Unlock()

	err := client.CreateStartAvatar(startCtx, req)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == subs {
		c.cancelStart = nil
	}
	if err != nil {
		// Skip the rollback when a concurrent Stop already tore this attempt down.
		if c.subs == subs {
			subs.Close()
			c.subs = nil
			c.state.SetStream(nil)
			c.state.setSessionState(StateInactive)
		}
		c.metrics.ObserveSessionEvent("start_failed")
		return nil, fmt.Errorf("start avatar: %w", err)
	}
	if c.subs != subs {
		// Stopped while connecting.
		c.metrics.ObserveSessionEvent("start_failed")
		return nil, fmt.Errorf("start avatar: %w", context.Canceled)
	}
	c.metrics.ObserveSessionEvent("started")
	return client, nil
}

func (c *Controller) registerHandlers(client avatar.Client) *subscriptions {
	subs := subscribe(client)
	on := func(t avatar.EventType, h avatar.Handler) {
		subs.on(t, func(ev avatar.Event) {
			c.metrics.ObserveAvatarEvent(string(ev.Type))
			if c.onActivity != nil {
				c.onActivity()
			}
			h(ev)
		})
	}

	on(avatar.EventStreamReady, func(ev avatar.Event) {
		c.state.SetStream(ev.Stream)
		c.state.transition(StateConnecting, StateConnected)
	})
	on(avatar.EventStreamDisconnected, func(avatar.Event) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), disconnectStopTimeout)
			defer cancel()
			if err := c.Stop(ctx); err != nil {
				c.logf("stop after stream disconnect failed: %v", err)
			}
		}()
	})
	on(avatar.EventConnectionQualityChanged, func(ev avatar.Event) {
		c.state.SetConnectionQuality(ev.Quality)
	})
	on(avatar.EventUserStart, func(avatar.Event) { c.state.SetUserTalking(true) })
	on(avatar.EventUserStop, func(avatar.Event) { c.state.SetUserTalking(false) })
	on(avatar.EventAvatarStartTalking, func(avatar.Event) { c.state.SetAvatarTalking(true) })
	on(avatar.EventAvatarStopTalking, func(avatar.Event) { c.state.SetAvatarTalking(false) })
	on(avatar.EventUserTalkingMessage, func(ev avatar.Event) {
		c.state.HandleUserTalkingMessage(ev.Message)
	})
	on(avatar.EventAvatarTalkingMessage, func(ev avatar.Event) {
		c.state.HandleStreamingTalkingMessage(ev.Message)
	})
	on(avatar.EventUserEndMessage, func(avatar.Event) { c.state.HandleEndMessage() })
	on(avatar.EventAvatarEndMessage, func(avatar.Event) { c.state.HandleEndMessage() })
	return subs
}

// Stop tears the session down and always leaves it INACTIVE. It is safe to
// call with no client, repeatedly, and while a Start is in flight, in which
// case the pending start is cancelled. The returned error only reports a
// failed provider teardown.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	if c.cancelStart != nil {
		c.cancelStart()
		c.cancelStart = nil
	}
	client := c.client
	vc := c.voiceChat
	wasActive := c.state.SessionState() != StateInactive
	c.mu.Unlock()

	subs.Close()
	c.state.ClearMessages()
	if vc != nil {
		vc.Stop(ctx)
	}
	c.state.SetListening(false)
	c.state.SetUserTalking(false)
	c.state.SetAvatarTalking(false)
	c.state.SetStream(nil)

	var stopErr error
	if client != nil {
		if err := client.StopAvatar(ctx); err != nil {
			c.logf("avatar stop failed: %v", err)
			stopErr = fmt.Errorf("stop avatar: %w", err)
		}
	}
	c.state.setSessionState(StateInactive)
	if wasActive {
		c.metrics.ObserveSessionEvent("stopped")
	}
	return stopErr
}

func (c *Controller) setVoiceChat(vc *VoiceChat) {
	c.mu.Lock()
	c.voiceChat = vc
	c.mu.Unlock()
}
