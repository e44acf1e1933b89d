package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/observability"
	"github.com/ppvaladez/avatar-interactive/internal/policy"
	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

// Notification is the body posted for every transcript notification.
type Notification struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Notifier posts transcript notifications without blocking the caller.
// Failures only reach the log sink.
type Notifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logf    func(format string, args ...any)
	metrics *observability.Metrics

	wg sync.WaitGroup
}

type NotifierOptions struct {
	Timeout time.Duration
	Logf    func(format string, args ...any)
	Metrics *observability.Metrics
}

func NewNotifier(url string, client *http.Client, opts NotifierOptions) *Notifier {
	if client == nil {
		client = upstream.NewClient(0)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Notifier{
		url:     strings.TrimSpace(url),
		client:  client,
		timeout: opts.Timeout,
		logf:    opts.Logf,
		metrics: opts.Metrics,
	}
}

// Notify dispatches the notification on its own goroutine and returns at once.
func (n *Notifier) Notify(message, sender string) {
	if n == nil {
		return
	}
	if n.url == "" {
		n.metrics.ObserveNotification(sender, "skipped")
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.send(ctx, Notification{Message: message, Sender: sender}); err != nil {
			n.metrics.ObserveNotification(sender, "error")
			n.logf("webhook notification failed sender=%s: %s", sender, policy.ForLog(err.Error()))
			return
		}
		n.metrics.ObserveNotification(sender, "ok")
	}()
}

// Wait blocks until every dispatched notification has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	return upstream.CheckResponse("n8n", res)
}
