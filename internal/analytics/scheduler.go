package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
	"github.com/capitalize-ai/realtime-relay/pkg/metrics"
)

// DefaultInterval is the live broadcast period.
const DefaultInterval = 15 * time.Second

// LabelLayout formats the wall-clock label of a live sample.
const LabelLayout = "3:04:05 PM"

// Scheduler pushes a live analytics sample to the admin group on every tick.
type Scheduler struct {
	interval  time.Duration
	generator *Generator
	notifier  rooms.Notifier
	now       func() time.Time
	logger    *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler. interval <= 0 selects
// DefaultInterval.
func NewScheduler(interval time.Duration, gen *Generator, notifier rooms.Notifier, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if gen == nil {
		gen = NewGenerator(nil)
	}
	if log == nil {
		log = logger.Global()
	}
	return &Scheduler{
		interval:  interval,
		generator: gen,
		notifier:  notifier,
		now:       time.Now,
		logger:    log.Component("analytics"),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	s.logger.Info("analytics broadcast started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.logger.Info("analytics broadcast stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick broadcasts one sample immediately. A panic while delivering is
// logged and swallowed so the loop keeps running.
func (s *Scheduler) Tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analytics tick failed", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	payload := s.generator.Sample(s.now().Format(LabelLayout))
	s.notifier.DeliverToAdmins(payload)
	metrics.BroadcastTicksTotal.Inc()
}
