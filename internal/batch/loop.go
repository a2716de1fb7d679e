package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// Loop runs the configured batch on a jittered interval for serve mode.
// A failed batch is logged and the loop keeps ticking; fail-fast applies
// within a batch, not across batches.
type Loop struct {
	runner   *Runner
	folders  []string
	commands []stats.CommandType
	interval time.Duration
	jitter   time.Duration
	logger   *slog.Logger
}

// NewLoop creates a Loop. interval must be positive.
func NewLoop(runner *Runner, folders []string, commands []stats.CommandType, interval, jitter time.Duration) (*Loop, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("loop interval must be positive, got %v", interval)
	}
	return &Loop{
		runner:   runner,
		folders:  folders,
		commands: commands,
		interval: interval,
		jitter:   jitter,
		logger:   log.WithComponent("loop"),
	}, nil
}

// Start blocks until ctx is cancelled, running one batch per tick.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("batch loop started", "interval", l.interval, "jitter", l.jitter)
	defer l.logger.Info("batch loop stopped")

	timer := time.NewTimer(jitteredInterval(l.interval, l.jitter))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if _, err := l.runner.Run(ctx, l.folders, l.commands, "loop"); err != nil {
				l.logger.Error("scheduled batch failed", "error", err)
			}
			timer.Reset(jitteredInterval(l.interval, l.jitter))
		}
	}
}

// jitteredInterval returns base plus a uniform random delay in [0, jitter].
func jitteredInterval(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(jitter)+1))
}

// ParseEvery parses schedule shorthand: a Go duration ("90s", "5m"), a named
// interval ("hourly", "daily", "weekly"), or "<n>w" for weeks.
func ParseEvery(s string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToLower(s))
	switch v {
	case "":
		return 0, fmt.Errorf("schedule interval is empty")
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	}

	if strings.HasSuffix(v, "w") {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "w"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid week interval %q", s)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule interval %q must be positive", s)
	}
	return d, nil
}
