package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

const (
	defaultHeyGenBasePath = "https://api.heygen.com"
	releaseTimeout        = 10 * time.Second
)

var ErrNoAvatarSession = errors.New("avatar session not started")

type HeyGenConfig struct {
	Token    string
	BasePath string
	// HTTPClient defaults to an upstream client honouring proxy env vars.
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logf       func(format string, args ...any)
}

// HeyGenClient drives the HeyGen streaming API: session negotiation and
// speak tasks over REST, realtime talking events over a websocket.
type HeyGenClient struct {
	Emitter

	cfg    HeyGenConfig
	client *http.Client

	mu        sync.Mutex
	sessionID string
	conn      *websocket.Conn
	closing   bool
	muted     bool
}

func NewHeyGenClient(cfg HeyGenConfig) *HeyGenClient {
	if strings.TrimSpace(cfg.BasePath) == "" {
		cfg.BasePath = defaultHeyGenBasePath
	}
	cfg.BasePath = strings.TrimRight(strings.TrimSpace(cfg.BasePath), "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = upstream.NewClient(60 * time.Second)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &HeyGenClient{cfg: cfg, client: cfg.HTTPClient, muted: true}
}

// HeyGenFactory returns a Factory creating HeyGen clients against basePath.
func HeyGenFactory(basePath string, httpClient *http.Client) Factory {
	return func(token string) Client {
		return NewHeyGenClient(HeyGenConfig{Token: token, BasePath: basePath, HTTPClient: httpClient})
	}
}

type heygenEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type newSessionRequest struct {
	StartAvatarRequest
	Version string `json:"version"`
	Source  string `json:"source"`
}

type newSessionData struct {
	SessionID        string `json:"session_id"`
	URL              string `json:"url"`
	AccessToken      string `json:"access_token"`
	RealtimeEndpoint string `json:"realtime_endpoint"`
}

func (c *HeyGenClient) CreateStartAvatar(ctx context.Context, req StartAvatarRequest) error {
	c.mu.Lock()
	c.closing = false
	c.mu.Unlock()

	var data newSessionData
	if err := c.call(ctx, "/v1/streaming.new", newSessionRequest{
		StartAvatarRequest: req,
		Version:            "v2",
		Source:             "sdk",
	}, &data); err != nil {
		return fmt.Errorf("create avatar session: %w", err)
	}
	if strings.TrimSpace(data.SessionID) == "" {
		return errors.New("create avatar session: empty session_id")
	}

	// The provider session exists from here on; StopAvatar must be able to find it.
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.releaseSession(data.SessionID)
		return fmt.Errorf("create avatar session: %w", context.Canceled)
	}
	c.sessionID = data.SessionID
	c.mu.Unlock()

	if err := c.call(ctx, "/v1/streaming.start", map[string]string{"session_id": data.SessionID}, nil); err != nil {
		if c.takeSession(data.SessionID) {
			c.releaseSession(data.SessionID)
		}
		return fmt.Errorf("start avatar session: %w", err)
	}

	// Talking events are optional; a session without them still streams video.
	if err := c.connectEvents(ctx, data.SessionID); err != nil {
		c.cfg.Logf("heygen event socket unavailable session=%s: %v", data.SessionID, err)
	}

	c.Emit(Event{
		Type: EventStreamReady,
		Stream: &Stream{
			SessionID:        data.SessionID,
			URL:              data.URL,
			AccessToken:      data.AccessToken,
			RealtimeEndpoint: data.RealtimeEndpoint,
		},
	})
	return nil
}

// takeSession clears sessionID if it still refers to id and reports whether
// the caller now owns its teardown.
func (c *HeyGenClient) takeSession(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != id {
		return false
	}
	c.sessionID = ""
	return true
}

// releaseSession stops a provider session left behind by a failed or
// cancelled start. It runs on its own context since the caller's is usually done.
func (c *HeyGenClient) releaseSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.call(ctx, "/v1/streaming.stop", map[string]string{"session_id": id}, nil); err != nil {
		c.cfg.Logf("heygen release session=%s failed: %v", id, err)
	}
}

func (c *HeyGenClient) StopAvatar(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	conn := c.conn
	c.sessionID = ""
	c.conn = nil
	c.closing = true
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if sessionID == "" {
		return nil
	}
	if err := c.call(ctx, "/v1/streaming.stop", map[string]string{"session_id": sessionID}, nil); err != nil {
		return fmt.Errorf("stop avatar session: %w", err)
	}
	return nil
}

func (c *HeyGenClient) Speak(ctx context.Context, req SpeakRequest) error {
	sessionID, err := c.currentSession()
	if err != nil {
		return err
	}
	if req.TaskType == "" {
		req.TaskType = TaskTypeTalk
	}
	if req.TaskMode == "" {
		req.TaskMode = TaskModeAsync
	}
	return c.call(ctx, "/v1/streaming.task", map[string]string{
		"session_id": sessionID,
		"text":       req.Text,
		"task_type":  string(req.TaskType),
		"task_mode":  string(req.TaskMode),
	}, nil)
}

func (c *HeyGenClient) StartListening(ctx context.Context) error {
	sessionID, err := c.currentSession()
	if err != nil {
		return err
	}
	return c.call(ctx, "/v1/streaming.start_listening", map[string]string{"session_id": sessionID}, nil)
}

func (c *HeyGenClient) StopListening(ctx context.Context) error {
	sessionID, err := c.currentSession()
	if err != nil {
		return err
	}
	return c.call(ctx, "/v1/streaming.stop_listening", map[string]string{"session_id": sessionID}, nil)
}

// MuteInputAudio marks the browser microphone track as muted. Audio capture
// happens on the media connection, so the flag is what the UI mirrors.
func (c *HeyGenClient) MuteInputAudio() {
	c.mu.Lock()
	c.muted = true
	c.mu.Unlock()
}

func (c *HeyGenClient) UnmuteInputAudio() {
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
}

func (c *HeyGenClient) InputMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *HeyGenClient) currentSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", ErrNoAvatarSession
	}
	return c.sessionID, nil
}

func (c *HeyGenClient) call(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BasePath+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if err := upstream.CheckResponse("heygen", res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var env heygenEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("heygen response missing data: %s", env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *HeyGenClient) eventsURL(sessionID string) (string, error) {
	u, err := url.Parse(c.cfg.BasePath + "/v1/ws/streaming.chat")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("session_token", c.cfg.Token)
	q.Set("silence_response", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *HeyGenClient) connectEvents(ctx context.Context, sessionID string) error {
	wsURL, err := c.eventsURL(sessionID)
	if err != nil {
		return err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event websocket: %w", err)
	}
	c.mu.Lock()
	if c.closing || c.sessionID != sessionID {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("avatar session stopped while connecting events")
	}
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
	return nil
}

type realtimeEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Text      string `json:"text"`
	Quality   string `json:"quality"`
}

func (c *HeyGenClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			expected := c.closing || c.conn != conn
			c.mu.Unlock()
			if !expected {
				c.cfg.Logf("heygen event socket closed: %v", err)
				c.Emit(Event{Type: EventStreamDisconnected})
			}
			return
		}
		ev, ok := parseRealtimeEvent(data)
		if !ok {
			continue
		}
		c.Emit(ev)
	}
}

func parseRealtimeEvent(data []byte) (Event, bool) {
	var raw realtimeEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, false
	}
	name := raw.EventType
	if name == "" {
		name = raw.Type
	}
	msg := raw.Message
	if msg == "" {
		msg = raw.Text
	}
	switch EventType(name) {
	case EventUserStart, EventUserStop, EventAvatarStartTalking, EventAvatarStopTalking,
		EventUserEndMessage, EventAvatarEndMessage, EventStreamDisconnected:
		return Event{Type: EventType(name)}, true
	case EventUserTalkingMessage, EventAvatarTalkingMessage:
		return Event{Type: EventType(name), Message: msg}, true
	case EventConnectionQualityChanged:
		q := ConnectionQuality(strings.ToUpper(strings.TrimSpace(raw.Quality)))
		if q == "" {
			q = ConnectionQualityUnknown
		}
		return Event{Type: EventConnectionQualityChanged, Quality: q}, true
	default:
		return Event{}, false
	}
}
