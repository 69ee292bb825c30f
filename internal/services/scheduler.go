package services

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/dispatcher"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
)

// Scheduler polls for scheduled broadcasts whose start time has passed
// and kicks off their execution. The dispatcher's one-run-per-broadcast
// guard makes a double pickup harmless.
type Scheduler struct {
	broadcasts BroadcastRepository
	executor   Executor
	interval   time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(broadcasts BroadcastRepository, executor Executor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		broadcasts: broadcasts,
		executor:   executor,
		interval:   interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.loop()
	logger.Info("broadcast scheduler started", "interval", s.interval)
}

// Stop halts the polling loop. Executions already kicked off keep
// running.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.broadcasts.ListDueScheduled(ctx, time.Now())
	if err != nil {
		logger.Error("scheduler: failed to list due broadcasts", "error", err)
		return
	}

	for _, b := range due {
		id := b.ID
		logger.Info("scheduler: picking up due broadcast", "broadcast_id", id, "title", b.Title)
		go func() {
			if _, err := s.executor.Execute(context.Background(), id, model.DispatchConfig{}); err != nil &&
				!errors.Is(err, dispatcher.ErrBroadcastActive) {
				logger.Error("scheduler: broadcast execution failed", "broadcast_id", id, "error", err)
			}
		}()
	}
}
