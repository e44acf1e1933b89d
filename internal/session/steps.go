package session

import (
	"context"
	"log"
	"strconv"
	"sync"
)

// StepSource returns the dialogue line for a step.
type StepSource interface {
	FetchStep(ctx context.Context, step string) (string, error)
}

// StepDialog walks a webhook-driven dialogue one line per request.
type StepDialog struct {
	ctrl   *Controller
	source StepSource
	logf   func(format string, args ...any)

	mu   sync.Mutex
	step int
}

func NewStepDialog(ctrl *Controller, source StepSource, logf func(format string, args ...any)) *StepDialog {
	if logf == nil {
		logf = log.Printf
	}
	return &StepDialog{ctrl: ctrl, source: source, logf: logf}
}

// LoadNext fetches the current step and sends it as a chat message. The step
// only advances once the message was sent. Failures are logged.
func (d *StepDialog) LoadNext(ctx context.Context) (string, bool) {
	if d.source == nil {
		d.logf("step dialog: no step source configured")
		return "", false
	}
	d.mu.Lock()
	step := d.step
	d.mu.Unlock()

	msg, err := d.source.FetchStep(ctx, strconv.Itoa(step))
	if err != nil {
		d.logf("step dialog: fetch step %d failed: %v", step, err)
		return "", false
	}
	if msg == "" {
		return "", false
	}
	if err := d.ctrl.SendText(ctx, msg); err != nil {
		d.logf("step dialog: send step %d failed: %v", step, err)
		return "", false
	}

	d.mu.Lock()
	if d.step == step {
		d.step++
	}
	d.mu.Unlock()
	return msg, true
}

func (d *StepDialog) Reset() {
	d.mu.Lock()
	d.step = 0
	d.mu.Unlock()
}

func (d *StepDialog) Step() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step
}
