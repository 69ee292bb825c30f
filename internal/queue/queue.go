package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/voice-broadcast/pkg/redis"
)

// Config describes one redis-stream backed event feed.
type Config struct {
	Stream       string
	Group        string
	Consumer     string
	PollInterval time.Duration
	ClaimIdle    time.Duration // redeliver entries pending longer than this
	BatchSize    int64
	MaxLen       int64
}

// Delivery is one entry handed to the consumer. Redelivered is set when the
// entry was reclaimed from a consumer that went away, so handlers must be
// idempotent.
type Delivery struct {
	ID          string
	Data        []byte
	Timestamp   time.Time
	Redelivered bool
}

// Handler processes one delivery. A nil return acknowledges the entry; an
// error leaves it pending for redelivery.
type Handler func(ctx context.Context, d Delivery) error

// Stream is an at-least-once event feed over a redis stream with a
// consumer group. It is the transport the call gateway uses to hand
// asynchronous call events back to the engine.
type Stream struct {
	adapter redis.RedisAdapter
	config  Config
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewStream(adapter redis.RedisAdapter, config Config) (*Stream, error) {
	if config.Stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if config.Group == "" {
		config.Group = "default-group"
	}
	if config.Consumer == "" {
		config.Consumer = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.PollInterval == 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if config.ClaimIdle == 0 {
		config.ClaimIdle = 30 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	// Group might already exist, which is fine.
	_ = s.adapter.XGroupCreateMkStream(config.Stream, config.Group, "0")

	return s, nil
}

// Publish appends one entry to the stream.
func (s *Stream) Publish(ctx context.Context, data []byte) (string, error) {
	id, err := s.adapter.XAdd(s.config.Stream, map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish entry: %w", err)
	}
	if s.config.MaxLen > 0 {
		_ = s.adapter.XTrimApprox(s.config.Stream, s.config.MaxLen)
	}
	return id, nil
}

func (s *Stream) PublishJSON(ctx context.Context, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	return s.Publish(ctx, data)
}

// Consume starts the poll loop. Entries are acknowledged when the handler
// returns nil; otherwise they stay pending and are reclaimed after
// ClaimIdle.
func (s *Stream) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	s.handler = handler
	s.wg.Add(1)
	go s.consumeLoop()
	return nil
}

func (s *Stream) consumeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.readNew()
			s.reclaimStuck()
		}
	}
}

func (s *Stream) readNew() {
	messages, err := s.adapter.XReadGroup(s.config.Group, s.config.Consumer, s.config.Stream, ">", s.config.BatchSize)
	if err != nil {
		return
	}
	for _, m := range messages {
		s.dispatch(toDelivery(m, false))
	}
}

func (s *Stream) reclaimStuck() {
	pending, err := s.adapter.XPendingExt(s.config.Stream, s.config.Group, "-", "+", 100)
	if err != nil || len(pending) == 0 {
		return
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= s.config.ClaimIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	messages, err := s.adapter.XClaim(s.config.Stream, s.config.Group, s.config.Consumer, s.config.ClaimIdle, ids...)
	if err != nil {
		return
	}
	for _, m := range messages {
		s.dispatch(toDelivery(m, true))
	}
}

func (s *Stream) dispatch(d Delivery) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.ClaimIdle)
	defer cancel()

	if err := s.handler(ctx, d); err != nil {
		// Leave pending; the reclaim pass redelivers it.
		return
	}
	_ = s.adapter.XAck(s.config.Stream, s.config.Group, d.ID)
}

func toDelivery(m redis.StreamMessage, redelivered bool) Delivery {
	d := Delivery{
		ID:          m.ID,
		Redelivered: redelivered,
	}
	for k, v := range m.Values {
		switch k {
		case "data":
			if data, ok := v.(string); ok {
				d.Data = []byte(data)
			}
		case "timestamp":
			if ts, ok := v.(string); ok {
				if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
					d.Timestamp = time.Unix(unix, 0)
				}
			}
		}
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	return d
}

// Len returns the number of entries currently in the stream.
func (s *Stream) Len() (int64, error) {
	return s.adapter.XLen(s.config.Stream)
}

// Stop halts consumption, waiting up to timeout for the poll loop to exit.
func (s *Stream) Stop(timeout time.Duration) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for stream consumer to stop")
	}
}
