package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type watchConfig struct {
	URL      string
	Clients  int
	Duration time.Duration
	Print    bool
}

// watchStats is shared by every spectator connection.
type watchStats struct {
	Connected atomic.Int64
	Errors    atomic.Int64

	mu     sync.Mutex
	byKind map[string]int64
	gaps   []time.Duration
}

func (s *watchStats) record(kind string, gap time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind[kind]++
	if gap > 0 {
		s.gaps = append(s.gaps, gap)
	}
}

func newWatchCmd() *cobra.Command {
	cfg := watchConfig{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach spectators to a running panel's /ws feed and report what they saw",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Clients <= 0 {
				return fmt.Errorf("clients must be positive, got %d", cfg.Clients)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Duration)
			defer cancel()
			stats := runWatch(ctx, cfg, cmd.OutOrStdout())
			printWatchResults(cmd.OutOrStdout(), stats, cfg)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.URL, "url", "ws://localhost:8080/ws", "spectator feed URL")
	cmd.Flags().IntVar(&cfg.Clients, "clients", 1, "number of concurrent spectators")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to watch")
	cmd.Flags().BoolVar(&cfg.Print, "print", false, "print every event line the first spectator receives")
	return cmd
}

func runWatch(ctx context.Context, cfg watchConfig, out io.Writer) *watchStats {
	stats := &watchStats{byKind: make(map[string]int64)}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			var w io.Writer
			if cfg.Print && id == 0 {
				w = out
			}
			watchOne(ctx, cfg.URL, stats, w)
		}(i)
	}
	wg.Wait()
	return stats
}

func watchOne(ctx context.Context, url string, stats *watchStats, printTo io.Writer) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		stats.Errors.Add(1)
		return
	}
	defer conn.Close()
	stats.Connected.Add(1)

	// Unblock ReadMessage when the watch window ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var last time.Time
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				stats.Errors.Add(1)
			}
			return
		}
		var frame struct {
			Kind string `json:"kind"`
			Data struct {
				Message   string    `json:"message"`
				Timestamp time.Time `json:"timestamp"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			stats.Errors.Add(1)
			continue
		}

		now := time.Now()
		var gap time.Duration
		if !last.IsZero() {
			gap = now.Sub(last)
		}
		last = now
		stats.record(frame.Kind, gap)

		if printTo != nil && frame.Kind == "event" {
			fmt.Fprintf(printTo, "[%s] %s\n", frame.Data.Timestamp.Format("15:04:05"), frame.Data.Message)
		}
	}
}

func printWatchResults(out io.Writer, stats *watchStats, cfg watchConfig) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Fprintf(out, "spectators: %d/%d connected, %d errors over %v\n",
		stats.Connected.Load(), cfg.Clients, stats.Errors.Load(), cfg.Duration)

	kinds := make([]string, 0, len(stats.byKind))
	for k := range stats.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-9s %d frames\n", k, stats.byKind[k])
	}

	if len(stats.gaps) == 0 {
		return
	}
	sort.Slice(stats.gaps, func(i, j int) bool { return stats.gaps[i] < stats.gaps[j] })
	p50 := stats.gaps[len(stats.gaps)*50/100]
	p99 := stats.gaps[len(stats.gaps)*99/100]
	fmt.Fprintf(out, "  frame gap p50=%v p99=%v max=%v\n", p50, p99, stats.gaps[len(stats.gaps)-1])
}
