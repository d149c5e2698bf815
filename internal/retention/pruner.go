package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MessagePruner deletes rows older than a cutoff and reports how many went.
type MessagePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner periodically trims message history older than the retention window.
// It is an opt-in background job; hosts that keep full history never start it.
type Pruner struct {
	retention time.Duration
	interval  time.Duration
	messages  MessagePruner

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(retention, interval time.Duration, messages MessagePruner) (*Pruner, error) {
	if retention <= 0 {
		return nil, errors.New("retention must be > 0")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if messages == nil {
		return nil, errors.New("messages must not be nil")
	}
	return &Pruner{
		retention: retention,
		interval:  interval,
		messages:  messages,
		done:      make(chan struct{}),
	}, nil
}

func (p *Pruner) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		slog.Info("retention pruner started",
			"retention", p.retention.String(), "interval", p.interval.String())

		p.safePrune(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("retention pruner stopping")
				return
			case <-ticker.C:
				p.safePrune(ctx)
			}
		}
	}()

	return true
}

func (p *Pruner) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return false
	}

	p.cancel()
	<-p.done
	p.running.Store(false)

	slog.Info("retention pruner stopped")
	return true
}

func (p *Pruner) IsRunning() bool {
	return p.running.Load()
}

func (p *Pruner) safePrune(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("retention prune panic recovered", "panic", r)
		}
	}()

	cutoff := time.Now().Add(-p.retention)
	start := time.Now()

	deleted, err := p.messages.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention prune failed", "error", err)
		return
	}

	slog.Info("retention prune completed",
		"deleted", deleted, "duration_ms", time.Since(start).Milliseconds())
}
