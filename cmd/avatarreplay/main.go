package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppvaladez/avatar-interactive/internal/protocol"
	"github.com/ppvaladez/avatar-interactive/internal/session"
)

type options struct {
	baseURL        string
	userID         string
	token          string
	avatarName     string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type wsEnvelope struct {
	Type   string           `json:"type"`
	Code   string           `json:"code,omitempty"`
	Detail string           `json:"detail,omitempty"`
	State  session.Snapshot `json:"state"`
}

var defaultUtterances = []string{
	"Hello, who am I talking to?",
	"What can you help me with today?",
	"Tell me something interesting.",
	"Thanks, goodbye.",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "avatarreplay: %v\n", err)
		os.Exit(2)
	}
	report, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avatarreplay: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(report)
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("avatarreplay", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "service base URL")
	fs.StringVar(&cfg.userID, "user-id", "replay", "user_id used for the synthetic session")
	fs.StringVar(&cfg.token, "token", "", "streaming token; fetched from /api/get-access-token when empty")
	fs.StringVar(&cfg.avatarName, "avatar", "", "avatar name; server default when empty")
	fs.IntVar(&cfg.turns, "turns", 4, "number of text turns to replay")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 250, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 20000, "timeout waiting for the avatar reply per turn in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	var created session.CreateResponse
	if err := postJSON(ctx, httpClient, cfg.baseURL+"/v1/avatar/session", map[string]string{"user_id": cfg.userID}, http.StatusCreated, &created); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	sessionID := created.SessionID
	defer func() {
		_ = deleteSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	token := strings.TrimSpace(cfg.token)
	if token == "" {
		var err error
		token, err = fetchToken(ctx, httpClient, cfg.baseURL)
		if err != nil {
			return "", fmt.Errorf("fetch token: %w", err)
		}
	}
	startBody := map[string]any{"token": token}
	if cfg.avatarName != "" {
		startBody["avatar"] = map[string]string{"avatar_name": cfg.avatarName}
	}
	startedAt := time.Now()
	if err := postJSON(ctx, httpClient, sessionPath(cfg.baseURL, sessionID, "/start"), startBody, http.StatusOK, nil); err != nil {
		return "", fmt.Errorf("start avatar: %w", err)
	}
	startLatency := time.Since(startedAt)
	if cfg.verbose {
		fmt.Printf("avatarreplay: session=%s started in %s\n", sessionID, startLatency.Round(time.Millisecond))
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return "", fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	snapshots := make(chan session.Snapshot, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, snapshots, readErrCh, cfg.verbose)

	latencies := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("avatarreplay: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}
		sentAt := time.Now()
		msg := protocol.ClientControl{
			Type:      protocol.TypeClientControl,
			SessionID: sessionID,
			Action:    protocol.ActionSendText,
			Text:      text,
		}
		if err := conn.WriteJSON(msg); err != nil {
			return "", fmt.Errorf("turn %d send text: %w", i+1, err)
		}
		if err := awaitReply(snapshots, readErrCh, i+1, cfg.turnTimeout); err != nil {
			return "", fmt.Errorf("turn %d await avatar reply: %w", i+1, err)
		}
		latencies = append(latencies, time.Since(sentAt))
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	return summarize(startLatency, latencies), nil
}

func sessionPath(baseURL, sessionID, suffix string) string {
	return baseURL + "/v1/avatar/session/" + url.PathEscape(sessionID) + suffix
}

func postJSON(ctx context.Context, client *http.Client, target string, body any, wantStatus int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != wantStatus {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func fetchToken(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/get-access-token", nil)
	if err != nil {
		return "", err
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(string(data)), nil
}

func deleteSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, sessionPath(baseURL, sessionID, ""), nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/avatar/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, snapshots chan<- session.Snapshot, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeStateSnapshot):
			select {
			case snapshots <- env.State:
			default:
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "avatarreplay: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

// replyComplete reports whether the transcript holds the wantClient-th client
// message followed by a finished avatar reply.
func replyComplete(snap session.Snapshot, wantClient int) bool {
	clients := 0
	for _, m := range snap.Messages {
		if m.Sender == session.SenderClient {
			clients++
		}
	}
	n := len(snap.Messages)
	return clients >= wantClient && n > 0 && snap.Messages[n-1].Sender == session.SenderAvatar && !snap.AvatarTalking
}

func awaitReply(snapshots <-chan session.Snapshot, readErrCh <-chan error, wantClient int, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case snap := <-snapshots:
			if snap.SessionState != session.StateConnected {
				return fmt.Errorf("session is %s", snap.SessionState)
			}
			if replyComplete(snap, wantClient) {
				return nil
			}
		case err := <-readErrCh:
			return err
		case <-timer.C:
			return fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func summarize(start time.Duration, turns []time.Duration) string {
	if len(turns) == 0 {
		return fmt.Sprintf("avatarreplay: start=%s turns=0", start.Round(time.Millisecond))
	}
	sorted := append([]time.Duration(nil), turns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 := sorted[len(sorted)/2]
	p95 := sorted[(len(sorted)*95)/100]
	return fmt.Sprintf("avatarreplay: start=%s turns=%d reply_p50=%s reply_p95=%s reply_max=%s",
		start.Round(time.Millisecond), len(turns),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), sorted[len(sorted)-1].Round(time.Millisecond))
}
