// Package metrics counts what the allocation core does during a round:
// modules produced, allocations, outcomes, expiries and dropped commands.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers round metrics. One collector belongs to one round.
type Collector struct {
	ModulesGenerated int64
	Assignments      int64
	AssignFailures   int64
	Defused          int64
	AttemptsFailed   int64
	ExplodedInHand   int64
	ExpiredInQueue   int64

	CommandsAccepted int64
	CommandsDropped  int64
	InvalidCommands  int64

	AttemptLatencySum int64 // nanoseconds spent on benches
	AttemptLatencyMax int64

	StartTime time.Time
	lastEvent time.Time
	mu        sync.RWMutex
}

// NewCollector returns a zeroed collector started now.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

// RecordGenerated counts a module pushed by the generator.
func (c *Collector) RecordGenerated() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.ModulesGenerated, 1)
	c.touch()
}

// RecordAssignment counts an allocation attempt and its outcome.
func (c *Collector) RecordAssignment(ok bool) {
	if c == nil {
		return
	}
	if ok {
		atomic.AddInt64(&c.Assignments, 1)
	} else {
		atomic.AddInt64(&c.AssignFailures, 1)
	}
	c.touch()
}

// RecordAttempt records one bench attempt. exploded implies a failure.
func (c *Collector) RecordAttempt(success, exploded bool, benchTime time.Duration) {
	if c == nil {
		return
	}
	switch {
	case success:
		atomic.AddInt64(&c.Defused, 1)
	case exploded:
		atomic.AddInt64(&c.ExplodedInHand, 1)
		atomic.AddInt64(&c.AttemptsFailed, 1)
	default:
		atomic.AddInt64(&c.AttemptsFailed, 1)
	}
	atomic.AddInt64(&c.AttemptLatencySum, int64(benchTime))

	// Update max (non-atomic but acceptable for metrics)
	if int64(benchTime) > atomic.LoadInt64(&c.AttemptLatencyMax) {
		atomic.StoreInt64(&c.AttemptLatencyMax, int64(benchTime))
	}
	c.touch()
}

// RecordExpired counts a module reclaimed by the watcher.
func (c *Collector) RecordExpired() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.ExpiredInQueue, 1)
	c.touch()
}

// RecordCommand counts a command offered to the dispatcher.
func (c *Collector) RecordCommand(accepted bool) {
	if c == nil {
		return
	}
	if accepted {
		atomic.AddInt64(&c.CommandsAccepted, 1)
	} else {
		atomic.AddInt64(&c.CommandsDropped, 1)
	}
}

// RecordInvalidCommand counts malformed operator input.
func (c *Collector) RecordInvalidCommand() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.InvalidCommands, 1)
}

func (c *Collector) touch() {
	c.mu.Lock()
	c.lastEvent = time.Now()
	c.mu.Unlock()
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attempts := atomic.LoadInt64(&c.Defused) + atomic.LoadInt64(&c.AttemptsFailed)
	var attemptAvg float64
	if attempts > 0 {
		attemptAvg = float64(atomic.LoadInt64(&c.AttemptLatencySum)) / float64(attempts) / 1e6 // ms
	}

	lastEvent := ""
	if !c.lastEvent.IsZero() {
		lastEvent = c.lastEvent.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),
		"last_event":     lastEvent,

		"modules": map[string]interface{}{
			"generated":        atomic.LoadInt64(&c.ModulesGenerated),
			"defused":          atomic.LoadInt64(&c.Defused),
			"attempts_failed":  atomic.LoadInt64(&c.AttemptsFailed),
			"exploded_in_hand": atomic.LoadInt64(&c.ExplodedInHand),
			"expired_in_queue": atomic.LoadInt64(&c.ExpiredInQueue),
		},

		"allocation": map[string]interface{}{
			"assignments":    atomic.LoadInt64(&c.Assignments),
			"failures":       atomic.LoadInt64(&c.AssignFailures),
			"avg_attempt_ms": attemptAvg,
			"max_attempt_ms": float64(atomic.LoadInt64(&c.AttemptLatencyMax)) / 1e6,
		},

		"commands": map[string]interface{}{
			"accepted": atomic.LoadInt64(&c.CommandsAccepted),
			"dropped":  atomic.LoadInt64(&c.CommandsDropped),
			"invalid":  atomic.LoadInt64(&c.InvalidCommands),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		fmt.Fprintf(w, "# HELP panel_modules_generated_total Modules pushed by the generator\n")
		fmt.Fprintf(w, "# TYPE panel_modules_generated_total counter\n")
		fmt.Fprintf(w, "panel_modules_generated_total %d\n\n", atomic.LoadInt64(&c.ModulesGenerated))

		fmt.Fprintf(w, "# HELP panel_assignments_total Allocation attempts by outcome\n")
		fmt.Fprintf(w, "# TYPE panel_assignments_total counter\n")
		fmt.Fprintf(w, "panel_assignments_total{result=\"ok\"} %d\n", atomic.LoadInt64(&c.Assignments))
		fmt.Fprintf(w, "panel_assignments_total{result=\"failed\"} %d\n\n", atomic.LoadInt64(&c.AssignFailures))

		fmt.Fprintf(w, "# HELP panel_attempts_total Bench attempts by outcome\n")
		fmt.Fprintf(w, "# TYPE panel_attempts_total counter\n")
		fmt.Fprintf(w, "panel_attempts_total{result=\"defused\"} %d\n", atomic.LoadInt64(&c.Defused))
		fmt.Fprintf(w, "panel_attempts_total{result=\"failed\"} %d\n", atomic.LoadInt64(&c.AttemptsFailed))
		fmt.Fprintf(w, "panel_attempts_total{result=\"exploded\"} %d\n\n", atomic.LoadInt64(&c.ExplodedInHand))

		fmt.Fprintf(w, "# HELP panel_expired_total Modules reclaimed from the queue by the watcher\n")
		fmt.Fprintf(w, "# TYPE panel_expired_total counter\n")
		fmt.Fprintf(w, "panel_expired_total %d\n\n", atomic.LoadInt64(&c.ExpiredInQueue))

		fmt.Fprintf(w, "# HELP panel_commands_total Commands offered to the dispatcher\n")
		fmt.Fprintf(w, "# TYPE panel_commands_total counter\n")
		fmt.Fprintf(w, "panel_commands_total{result=\"accepted\"} %d\n", atomic.LoadInt64(&c.CommandsAccepted))
		fmt.Fprintf(w, "panel_commands_total{result=\"dropped\"} %d\n", atomic.LoadInt64(&c.CommandsDropped))
		fmt.Fprintf(w, "panel_commands_total{result=\"invalid\"} %d\n\n", atomic.LoadInt64(&c.InvalidCommands))

		fmt.Fprintf(w, "# HELP panel_attempt_latency_max_ms Longest bench attempt\n")
		fmt.Fprintf(w, "# TYPE panel_attempt_latency_max_ms gauge\n")
		fmt.Fprintf(w, "panel_attempt_latency_max_ms %.2f\n", float64(atomic.LoadInt64(&c.AttemptLatencyMax))/1e6)
	}
}
