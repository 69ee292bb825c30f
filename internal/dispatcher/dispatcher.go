package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/voice-broadcast/internal/events"
	gateway "github.com/nimasrn/voice-broadcast/internal/gateways"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
	"github.com/nimasrn/voice-broadcast/pkg/prom"
)

var (
	// ErrBroadcastActive is returned when Execute is called for a broadcast
	// that already has a running execution.
	ErrBroadcastActive = errors.New("broadcast execution already active")
)

// BroadcastStore is the broadcast persistence the dispatcher drives.
type BroadcastStore interface {
	GetByID(ctx context.Context, id int64) (*model.Broadcast, error)
	MarkStarted(ctx context.Context, id int64, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	MarkCancelled(ctx context.Context, id int64, cancelledBy, reason string) error
	SetTotalRecipients(ctx context.Context, id int64, total int) error
	IncrementCounters(ctx context.Context, id int64, successDelta, failureDelta int) error
}

// CallStore persists per-attempt call records.
type CallStore interface {
	Create(ctx context.Context, c *model.Call) (*model.Call, error)
	UpdateStatus(ctx context.Context, callID string, status model.CallStatus) error
	UpdateOutcome(ctx context.Context, callID string, status model.CallStatus, startedAt, endedAt *time.Time, duration int, errorMessage string) error
}

// RecipientResolver expands targeting criteria into the dial list.
type RecipientResolver interface {
	ResolveRecipients(ctx context.Context, criteria model.TargetCriteria) ([]model.Recipient, error)
}

// EventSink receives best-effort status events.
type EventSink interface {
	Publish(ev events.Event)
}

// run is one active broadcast execution. The cancelled flag is the
// cooperative stop signal: workers check it before starting each call, so
// in-flight attempts finish while queued ones are discarded.
type run struct {
	cancelled atomic.Bool
}

// callJob is one pending dial of one recipient. attempt starts at 1 and
// grows when the job is re-enqueued for retry.
type callJob struct {
	recipient model.Recipient
	attempt   int
}

// Dispatcher executes broadcasts: it resolves the audience, dials every
// recipient through a bounded worker pool, drives each attempt to a
// terminal outcome and settles the broadcast's final status. One execution
// per broadcast may be active at a time.
type Dispatcher struct {
	broadcasts BroadcastStore
	calls      CallStore
	resolver   RecipientResolver
	lifecycle  *lifecycle
	sink       EventSink
	config     model.DispatchConfig

	mu   sync.Mutex
	runs map[int64]*run
}

func NewDispatcher(broadcasts BroadcastStore, calls CallStore, resolver RecipientResolver, gw gateway.CallGateway, sink EventSink, config model.DispatchConfig) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		broadcasts: broadcasts,
		calls:      calls,
		resolver:   resolver,
		lifecycle:  &lifecycle{gateway: gw},
		sink:       sink,
		config:     config,
		runs:       make(map[int64]*run),
	}, nil
}

// Running reports whether the broadcast has an active execution.
func (d *Dispatcher) Running(broadcastID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.runs[broadcastID]
	return ok
}

// Cancel moves the broadcast to cancelled and signals its execution, if
// one is active, to stop starting new calls. Calls already in flight are
// allowed to finish; Execute returns once they have drained.
func (d *Dispatcher) Cancel(ctx context.Context, broadcastID int64, cancelledBy, reason string) error {
	if err := d.broadcasts.MarkCancelled(ctx, broadcastID, cancelledBy, reason); err != nil {
		return err
	}

	d.mu.Lock()
	r := d.runs[broadcastID]
	d.mu.Unlock()
	if r != nil {
		r.cancelled.Store(true)
	}

	prom.IncBroadcastOutcome(string(model.BroadcastStatusCancelled))
	d.publish(events.Event{
		BroadcastID: broadcastID,
		Status:      string(model.BroadcastStatusCancelled),
	})

	logger.Info("broadcast cancelled", "broadcast_id", broadcastID, "cancelled_by", cancelledBy, "reason", reason)
	return nil
}

// Execute runs one broadcast to completion and returns its summary.
// config tunes this run only: zero fields inherit the dispatcher defaults
// and a zero config selects them wholesale. The summary is populated even
// when the run fails partway: partial counts stay valid and Error carries
// the cause. The returned error is non-nil only for failures before
// dispatch started (unknown broadcast, invalid state or config, audience
// resolution).
func (d *Dispatcher) Execute(ctx context.Context, broadcastID int64, config model.DispatchConfig) (*model.ExecutionSummary, error) {
	start := time.Now()
	summary := &model.ExecutionSummary{BroadcastID: broadcastID}

	cfg, err := d.effectiveConfig(config)
	if err != nil {
		summary.Error = err.Error()
		return summary, err
	}

	r, err := d.register(broadcastID)
	if err != nil {
		summary.Error = err.Error()
		return summary, err
	}
	defer d.unregister(broadcastID)

	b, err := d.broadcasts.GetByID(ctx, broadcastID)
	if err != nil {
		summary.Error = err.Error()
		return summary, err
	}
	summary.Status = b.Status

	if err := d.broadcasts.MarkStarted(ctx, broadcastID, time.Now()); err != nil {
		summary.Error = err.Error()
		return summary, err
	}
	summary.Status = model.BroadcastStatusInProgress
	d.publish(events.Event{BroadcastID: broadcastID, Status: string(model.BroadcastStatusInProgress)})
	logger.Info("broadcast execution started", "broadcast_id", broadcastID, "title", b.Title)

	recipients, err := d.resolver.ResolveRecipients(ctx, b.Criteria)
	if err != nil {
		return d.settleFailed(ctx, summary, start, err.Error()), err
	}

	total := len(recipients)
	summary.TotalCalls = total
	if err := d.broadcasts.SetTotalRecipients(ctx, broadcastID, total); err != nil {
		logger.Error("failed to store audience size", "broadcast_id", broadcastID, "error", err)
	}

	agg := newAggregator(total)

	// Capacity covers every possible re-enqueue, so workers never block
	// pushing a retry.
	jobs := make(chan *callJob, total*(cfg.MaxRetries+1))
	for i := range recipients {
		jobs <- &callJob{recipient: recipients[i], attempt: 1}
	}

	var outstanding atomic.Int64
	outstanding.Store(int64(total))

	workers := cfg.MaxConcurrentCalls
	if workers > total {
		workers = total
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, r, b, cfg, jobs, &outstanding, agg)
		}()
	}
	wg.Wait()

	success, failure := agg.counts()
	summary.CompletedCalls = success
	summary.FailedCalls = failure
	summary.Statistics = agg.snapshot()
	summary.ExecutionTime = time.Since(start)

	switch {
	case r.cancelled.Load():
		summary.Status = model.BroadcastStatusCancelled

	case agg.gatewayUnreachable():
		summary.Error = "call gateway unreachable"
		if err := d.broadcasts.MarkFailed(ctx, broadcastID); err != nil {
			logger.Error("failed to mark broadcast failed", "broadcast_id", broadcastID, "error", err)
		}
		summary.Status = model.BroadcastStatusFailed
		prom.IncBroadcastOutcome(string(model.BroadcastStatusFailed))
		d.publish(events.Event{
			BroadcastID:        broadcastID,
			Status:             string(model.BroadcastStatusFailed),
			ProgressPercentage: agg.progress(),
		})

	default:
		if err := d.broadcasts.MarkCompleted(ctx, broadcastID, time.Now()); err != nil {
			logger.Error("failed to mark broadcast completed", "broadcast_id", broadcastID, "error", err)
		}
		summary.Status = model.BroadcastStatusCompleted
		prom.IncBroadcastOutcome(string(model.BroadcastStatusCompleted))
		d.publish(events.Event{
			BroadcastID:        broadcastID,
			Status:             string(model.BroadcastStatusCompleted),
			ProgressPercentage: 100,
		})
	}

	logger.Info("broadcast execution finished",
		"broadcast_id", broadcastID,
		"status", string(summary.Status),
		"total", total,
		"completed", success,
		"failed", failure,
		"duration", summary.ExecutionTime)

	return summary, nil
}

// work is one pool worker. It owns jobs one at a time: either the job
// reaches a final outcome (possibly after re-enqueueing retries) or, after
// cancellation, it is discarded. The worker that resolves the last
// outstanding recipient closes the job channel and releases the pool.
func (d *Dispatcher) work(ctx context.Context, r *run, b *model.Broadcast, cfg model.DispatchConfig, jobs chan *callJob, outstanding *atomic.Int64, agg *aggregator) {
	for job := range jobs {
		if r.cancelled.Load() || ctx.Err() != nil {
			d.finishOne(jobs, outstanding)
			continue
		}

		res := d.attempt(ctx, b, cfg, job, agg)

		if ShouldRetry(res.Status, job.attempt, cfg) && !r.cancelled.Load() {
			job.attempt++
			jobs <- job
			continue
		}

		agg.recordOutcome(res)

		successDelta, failureDelta := 0, 1
		if res.Status.IsSuccess() {
			successDelta, failureDelta = 1, 0
		}
		if err := d.broadcasts.IncrementCounters(ctx, b.ID, successDelta, failureDelta); err != nil {
			logger.Error("failed to increment broadcast counters", "broadcast_id", b.ID, "error", err)
		}

		d.publish(events.Event{
			BroadcastID:        b.ID,
			Status:             string(model.BroadcastStatusInProgress),
			ProgressPercentage: agg.progress(),
		})

		d.finishOne(jobs, outstanding)
	}
}

// attempt creates the attempt's call record, drives it through the
// lifecycle and persists the terminal outcome.
func (d *Dispatcher) attempt(ctx context.Context, b *model.Broadcast, cfg model.DispatchConfig, job *callJob, agg *aggregator) AttemptResult {
	callID := uuid.NewString()

	if _, err := d.calls.Create(ctx, &model.Call{
		CallID:      callID,
		BroadcastID: &b.ID,
		EmployeeID:  job.recipient.EmployeeID,
		PhoneNumber: job.recipient.PhoneNumber,
		Status:      model.CallStatusPending,
		Attempts:    job.attempt,
	}); err != nil {
		logger.Error("failed to create call record", "broadcast_id", b.ID, "employee_id", job.recipient.EmployeeID, "error", err)
		agg.noteAttempt(false)
		return AttemptResult{Status: model.CallStatusFailed, ErrorMessage: "failed to create call record: " + err.Error()}
	}

	prom.IncCallsInFlight()
	defer prom.DecCallsInFlight()

	res := d.lifecycle.Run(ctx, gateway.PlaceRequest{
		CallID:       callID,
		PhoneNumber:  job.recipient.PhoneNumber,
		Message:      b.Message,
		AudioFileURL: b.AudioFileURL,
	}, cfg.CallTimeout(), func(status model.CallStatus) {
		if err := d.calls.UpdateStatus(ctx, callID, status); err != nil {
			logger.Error("failed to update call status", "call_id", callID, "error", err)
		}
		d.publish(events.Event{
			BroadcastID:        b.ID,
			CallID:             callID,
			Status:             string(status),
			ProgressPercentage: agg.progress(),
		})
	})

	agg.noteAttempt(res.Transport)

	if err := d.calls.UpdateOutcome(ctx, callID, res.Status, res.StartedAt, res.EndedAt, res.Duration, res.ErrorMessage); err != nil {
		logger.Error("failed to persist call outcome", "call_id", callID, "error", err)
	}

	prom.IncCallOutcome(string(res.Status))
	prom.AddCallDuration(float64(res.Duration), string(res.Status))

	d.publish(events.Event{
		BroadcastID:        b.ID,
		CallID:             callID,
		Status:             string(res.Status),
		ProgressPercentage: agg.progress(),
	})

	return res
}

// finishOne retires one recipient. Only workers enqueue, and only for
// jobs they have not yet retired, so when the count hits zero no further
// sends are possible and closing the channel is safe.
func (d *Dispatcher) finishOne(jobs chan *callJob, outstanding *atomic.Int64) {
	if outstanding.Add(-1) == 0 {
		close(jobs)
	}
}

func (d *Dispatcher) settleFailed(ctx context.Context, summary *model.ExecutionSummary, start time.Time, cause string) *model.ExecutionSummary {
	if err := d.broadcasts.MarkFailed(ctx, summary.BroadcastID); err != nil {
		logger.Error("failed to mark broadcast failed", "broadcast_id", summary.BroadcastID, "error", err)
	}
	summary.Status = model.BroadcastStatusFailed
	summary.Error = cause
	summary.ExecutionTime = time.Since(start)

	prom.IncBroadcastOutcome(string(model.BroadcastStatusFailed))
	d.publish(events.Event{
		BroadcastID: summary.BroadcastID,
		Status:      string(model.BroadcastStatusFailed),
	})
	return summary
}

// effectiveConfig overlays per-run settings on the dispatcher defaults. A
// zero config selects the defaults wholesale; otherwise unset pool size and
// timeout inherit theirs and the result is validated.
func (d *Dispatcher) effectiveConfig(cfg model.DispatchConfig) (model.DispatchConfig, error) {
	if cfg == (model.DispatchConfig{}) {
		return d.config, nil
	}
	if cfg.MaxConcurrentCalls == 0 {
		cfg.MaxConcurrentCalls = d.config.MaxConcurrentCalls
	}
	if cfg.CallTimeoutSeconds == 0 {
		cfg.CallTimeoutSeconds = d.config.CallTimeoutSeconds
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (d *Dispatcher) register(broadcastID int64) (*run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.runs[broadcastID]; ok {
		return nil, ErrBroadcastActive
	}
	r := &run{}
	d.runs[broadcastID] = r
	return r, nil
}

func (d *Dispatcher) unregister(broadcastID int64) {
	d.mu.Lock()
	delete(d.runs, broadcastID)
	d.mu.Unlock()
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.sink == nil {
		return
	}
	d.sink.Publish(ev)
}
