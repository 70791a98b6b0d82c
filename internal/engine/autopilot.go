package engine

import (
	"context"
	"time"
)

// Submitter accepts commands. *Round and *Dispatcher satisfy it.
type Submitter interface {
	Submit(cmd Command) bool
}

// Autopilot stands in for an operator: it asks for an automatic assignment
// at a fixed interval.
type Autopilot struct {
	target   Submitter
	interval time.Duration
}

// NewAutopilot creates an autopilot submitting to target.
func NewAutopilot(target Submitter, interval time.Duration) *Autopilot {
	if interval <= 0 {
		interval = time.Second
	}
	return &Autopilot{target: target, interval: interval}
}

// Run submits AutoAssign every interval until ctx is done. It returns the
// number of commands the dispatcher accepted.
func (a *Autopilot) Run(ctx context.Context) int {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	accepted := 0
	for {
		select {
		case <-ctx.Done():
			return accepted
		case <-ticker.C:
			if a.target.Submit(AutoAssign{}) {
				accepted++
			}
		}
	}
}
