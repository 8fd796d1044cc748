package docker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/dockerkit/component"
	"github.com/kbukum/dockerkit/logger"
	"github.com/kbukum/dockerkit/resilience"
)

// DefaultWatchInterval is used when WatchStats gets a non-positive interval.
const DefaultWatchInterval = 2 * time.Second

// StatsCallback receives every sample, or the error of a failed poll.
type StatsCallback func(stats []ContainerStats, err error)

// StatsWatcher polls docker stats on an interval until stopped. A tick that
// fires while the previous poll is still running is skipped.
type StatsWatcher struct {
	client   *Client
	ids      []string
	interval time.Duration
	callback StatsCallback
	bulkhead *resilience.Bulkhead
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	polls   int
	skipped int
}

// WatchStats returns a watcher for ids (all running containers when empty).
// Call Start to begin polling.
func (c *Client) WatchStats(ids []string, interval time.Duration, cb StatsCallback) *StatsWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	w := &StatsWatcher{
		client:   c,
		ids:      ids,
		interval: interval,
		callback: cb,
		log:      c.log.WithComponent("stats-watcher"),
	}
	w.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "stats-watcher",
		MaxConcurrent: 1,
		OnReject:      func(string) { w.recordSkip() },
	})
	return w
}

var _ component.Component = (*StatsWatcher)(nil)

func (w *StatsWatcher) Name() string { return "stats-watcher" }

// Start polls once right away, then on every tick. The watcher stops when
// Stop is called or ctx is done.
func (w *StatsWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("stats watcher already started")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
	w.log.Debug("stats watcher started", logger.Fields("interval", w.interval.String(), "containers", w.ids))
	return nil
}

// Stop ends polling and waits for the loop to exit, or for ctx.
func (w *StatsWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *StatsWatcher) Health(_ context.Context) component.Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := component.Health{Name: w.Name(), Status: component.StatusHealthy}
	switch {
	case w.cancel == nil:
		h.Message = "stopped"
	case w.lastErr != nil:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("last poll failed: %v", w.lastErr)
	default:
		h.Message = fmt.Sprintf("%d polls, %d skipped", w.polls, w.skipped)
	}
	return h
}

func (w *StatsWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.tick(ctx)
		}()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *StatsWatcher) tick(ctx context.Context) {
	err := w.bulkhead.Execute(ctx, func() error {
		stats, err := w.client.Stats(ctx, w.ids...)
		if ctx.Err() != nil {
			return nil
		}
		w.record(err)
		if w.callback != nil {
			w.callback(stats, err)
		}
		return err
	})
	if errors.Is(err, resilience.ErrBulkheadFull) {
		w.log.Debug("stats poll skipped, previous poll still running")
	}
}

func (w *StatsWatcher) record(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	w.lastErr = err
}

func (w *StatsWatcher) recordSkip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipped++
}
