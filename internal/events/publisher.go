package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nimasrn/voice-broadcast/pkg/logger"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
	"github.com/nimasrn/voice-broadcast/pkg/worker"
)

// redisPublishTimeout caps one pub/sub publish from the delivery pump.
const redisPublishTimeout = 2 * time.Second

// Event is one call- or broadcast-level status change pushed to
// subscribers. CallID is empty for broadcast-level events.
type Event struct {
	BroadcastID        int64     `json:"broadcast_id"`
	CallID             string    `json:"call_id,omitempty"`
	Status             string    `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
	Timestamp          time.Time `json:"timestamp"`
}

// Publisher fans out status events to in-process subscribers and, when a
// redis adapter is configured, to the pub/sub channel external consumers
// (the websocket layer, dashboards) listen on.
//
// Delivery is best-effort: a full pump buffer or a slow subscriber drops
// events instead of stalling a dispatch worker, and publish failures never
// propagate back to the caller. A single pump goroutine drains the buffer,
// so events keep the order their producer emitted them in.
type Publisher struct {
	adapter redis.RedisAdapter
	channel string

	jobs chan interface{}
	pump *worker.WorkerManager

	mu     sync.RWMutex
	subs   map[int64]chan Event
	nextID int64
	closed bool
}

func NewPublisher(adapter redis.RedisAdapter, channel string, bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	jobs := make(chan interface{}, bufferSize)
	p := &Publisher{
		adapter: adapter,
		channel: channel,
		jobs:    jobs,
		pump:    worker.NewWorkerManager(1, jobs),
		subs:    make(map[int64]chan Event),
	}

	p.pump.SetWorker(p.deliver)
	go func() {
		_ = p.pump.Start()
	}()

	return p
}

// Publish enqueues an event for delivery. It never blocks: when the pump
// buffer is full the event is dropped and counted against the log.
func (p *Publisher) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case p.jobs <- ev:
	default:
		logger.Warn("event buffer full, dropping event", "broadcast_id", ev.BroadcastID, "status", ev.Status)
	}
}

// Subscribe registers an in-process listener. The returned cancel func
// removes the subscription and closes the channel.
func (p *Publisher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		sub, ok := p.subs[id]
		if ok {
			delete(p.subs, id)
		}
		p.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

func (p *Publisher) deliver(workerIndex int, job interface{}) {
	ev, ok := job.(Event)
	if !ok {
		return
	}

	if p.adapter != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to marshal event", "error", err)
		} else {
			// Bounded so a hung redis connection cannot wedge the pump and
			// turn every later Publish into a drop.
			ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
			if err := p.adapter.Client().Publish(ctx, p.channel, payload).Err(); err != nil {
				// Side channel only; the state transition already happened.
				logger.Warn("failed to publish event to redis", "error", err)
			}
			cancel()
		}
	}

	p.mu.RLock()
	for _, sub := range p.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber; skip rather than block the pump.
		}
	}
	p.mu.RUnlock()
}

// Close stops the pump. Events still buffered are discarded.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := p.subs
	p.subs = make(map[int64]chan Event)
	p.mu.Unlock()

	p.pump.Exit()
	for _, sub := range subs {
		close(sub)
	}
}
