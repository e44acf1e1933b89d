// Package webhook talks to the external dialogue webhook (an n8n workflow):
// whole-script and per-step dialogue fetches, reply requests, and
// fire-and-forget transcript notifications.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

var (
	ErrNotConfigured = errors.New("webhook url is not configured")
	ErrBodyTooLarge  = errors.New("webhook response exceeds size limit")
)

// maxBody caps relayed webhook payloads.
const maxBody = 2 << 20

type Config struct {
	// DialogueURL returns a whole dialogue script.
	DialogueURL string
	// StepURL returns one dialogue line per step.
	StepURL string
	// NotifyURL receives transcript notifications and reply requests.
	NotifyURL string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = upstream.NewClient(0)
	}
	cfg.DialogueURL = strings.TrimSpace(cfg.DialogueURL)
	cfg.StepURL = strings.TrimSpace(cfg.StepURL)
	cfg.NotifyURL = strings.TrimSpace(cfg.NotifyURL)
	return &Client{cfg: cfg, http: httpClient}
}

// RawResponse is an upstream reply kept byte-for-byte for relaying.
type RawResponse struct {
	Status int
	Body   []byte
}

func (r RawResponse) OK() bool { return upstream.IsSuccess(r.Status) }

// FetchDialogue GETs the dialogue webhook and returns whatever it answered,
// including non-2xx replies. Only transport failures are errors.
func (c *Client) FetchDialogue(ctx context.Context) (RawResponse, error) {
	if c.cfg.DialogueURL == "" {
		return RawResponse{}, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DialogueURL, nil)
	if err != nil {
		return RawResponse{}, fmt.Errorf("create request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return RawResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	body, err := readBody(res.Body)
	if err != nil {
		return RawResponse{}, err
	}
	return RawResponse{Status: res.StatusCode, Body: body}, nil
}

// FetchScript fetches the dialogue and fails on non-2xx replies.
func (c *Client) FetchScript(ctx context.Context) ([]byte, error) {
	raw, err := c.FetchDialogue(ctx)
	if err != nil {
		return nil, err
	}
	if !raw.OK() {
		return nil, &upstream.StatusError{Service: "n8n", Status: raw.Status, Body: strings.TrimSpace(string(raw.Body))}
	}
	return raw.Body, nil
}

// FetchStep returns the message field for one dialogue step.
func (c *Client) FetchStep(ctx context.Context, step string) (string, error) {
	if c.cfg.StepURL == "" {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(step) == "" {
		step = "0"
	}
	u, err := url.Parse(c.cfg.StepURL)
	if err != nil {
		return "", fmt.Errorf("parse step url: %w", err)
	}
	q := u.Query()
	q.Set("step", step)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if err := upstream.CheckResponse("n8n", res); err != nil {
		return "", err
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxBody)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode step response: %w", err)
	}
	return parsed.Message, nil
}

// FetchReply posts a message and returns the webhook's answer: a bare JSON
// string, or the reply or message field.
func (c *Client) FetchReply(ctx context.Context, message string) (string, error) {
	if c.cfg.NotifyURL == "" {
		return "", ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NotifyURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if err := upstream.CheckResponse("n8n", res); err != nil {
		return "", err
	}
	body, err := readBody(res.Body)
	if err != nil {
		return "", err
	}
	return extractReply(body)
}

// readBody reads at most maxBody bytes and fails rather than truncate.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxBody {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func extractReply(body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case map[string]any:
		for _, k := range []string{"reply", "message"} {
			if s, ok := t[k].(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", nil
}
