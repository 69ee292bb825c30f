package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/events"
	gateway "github.com/nimasrn/voice-broadcast/internal/gateways"
	"github.com/nimasrn/voice-broadcast/internal/model"
)

// script describes what the fake bridge does with one placement of a
// given phone number. Scripts are consumed in order; the fallback applies
// when none is left.
type script struct {
	placeErr error
	events   []gateway.CallEvent
	delay    time.Duration // before any event is emitted
	silent   bool          // emit nothing, let the ring timeout decide
}

func answeredThenEnded() []gateway.CallEvent {
	return []gateway.CallEvent{
		{Type: gateway.EventAnswered, Timestamp: time.Now()},
		{Type: gateway.EventEnded, Timestamp: time.Now()},
	}
}

type fakeGateway struct {
	mu          sync.Mutex
	scripts     map[string][]script
	fallback    script
	placed      []gateway.PlaceRequest
	hangups     []string
	released    []string
	inFlight    int
	maxInFlight int

	seq atomic.Int64
}

func newFakeGateway(fallback script) *fakeGateway {
	return &fakeGateway{
		scripts:  make(map[string][]script),
		fallback: fallback,
	}
}

func (g *fakeGateway) scriptFor(phone string, scripts ...script) {
	g.mu.Lock()
	g.scripts[phone] = append(g.scripts[phone], scripts...)
	g.mu.Unlock()
}

func (g *fakeGateway) PlaceCall(ctx context.Context, req gateway.PlaceRequest) (*gateway.Attempt, error) {
	g.mu.Lock()
	s := g.fallback
	if list := g.scripts[req.PhoneNumber]; len(list) > 0 {
		s = list[0]
		g.scripts[req.PhoneNumber] = list[1:]
	}
	if s.placeErr != nil {
		g.mu.Unlock()
		return nil, s.placeErr
	}
	g.placed = append(g.placed, req)
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.mu.Unlock()

	handle := fmt.Sprintf("h-%d", g.seq.Add(1))
	ch := make(chan gateway.CallEvent, len(s.events)+1)
	if !s.silent {
		go func() {
			if s.delay > 0 {
				time.Sleep(s.delay)
			}
			for _, ev := range s.events {
				ev.Handle = handle
				ch <- ev
			}
		}()
	}
	return &gateway.Attempt{Handle: handle, Events: ch}, nil
}

func (g *fakeGateway) Hangup(ctx context.Context, handle string) error {
	g.mu.Lock()
	g.hangups = append(g.hangups, handle)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Release(handle string) {
	g.mu.Lock()
	g.released = append(g.released, handle)
	g.inFlight--
	g.mu.Unlock()
}

func (g *fakeGateway) placedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.placed)
}

func (g *fakeGateway) peakConcurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

func (g *fakeGateway) hangupCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.hangups)
}

var errFakeNotFound = errors.New("broadcast not found")

type memBroadcasts struct {
	mu    sync.Mutex
	items map[int64]*model.Broadcast
}

func newMemBroadcasts(items ...*model.Broadcast) *memBroadcasts {
	m := &memBroadcasts{items: make(map[int64]*model.Broadcast)}
	for _, b := range items {
		clone := *b
		m.items[b.ID] = &clone
	}
	return m
}

func (m *memBroadcasts) GetByID(ctx context.Context, id int64) (*model.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, errFakeNotFound
	}
	clone := *b
	return &clone, nil
}

func (m *memBroadcasts) transition(id int64, to model.BroadcastStatus, mut func(*model.Broadcast)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return errFakeNotFound
	}
	if !model.CanTransition(b.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s", b.Status, to)
	}
	b.Status = to
	if mut != nil {
		mut(b)
	}
	return nil
}

func (m *memBroadcasts) MarkStarted(ctx context.Context, id int64, startedAt time.Time) error {
	return m.transition(id, model.BroadcastStatusInProgress, func(b *model.Broadcast) {
		b.StartedAt = &startedAt
	})
}

func (m *memBroadcasts) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	return m.transition(id, model.BroadcastStatusCompleted, func(b *model.Broadcast) {
		b.CompletedAt = &completedAt
	})
}

func (m *memBroadcasts) MarkFailed(ctx context.Context, id int64) error {
	return m.transition(id, model.BroadcastStatusFailed, nil)
}

func (m *memBroadcasts) MarkCancelled(ctx context.Context, id int64, cancelledBy, reason string) error {
	return m.transition(id, model.BroadcastStatusCancelled, func(b *model.Broadcast) {
		b.CancelledBy = cancelledBy
		b.CancelReason = reason
	})
}

func (m *memBroadcasts) SetTotalRecipients(ctx context.Context, id int64, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return errFakeNotFound
	}
	b.TotalRecipients = total
	return nil
}

func (m *memBroadcasts) IncrementCounters(ctx context.Context, id int64, successDelta, failureDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return errFakeNotFound
	}
	b.SuccessCount += successDelta
	b.FailureCount += failureDelta
	return nil
}

func (m *memBroadcasts) get(id int64) model.Broadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

type memCalls struct {
	mu    sync.Mutex
	byID  map[string]*model.Call
	order []string
}

func newMemCalls() *memCalls {
	return &memCalls{byID: make(map[string]*model.Call)}
}

func (m *memCalls) Create(ctx context.Context, c *model.Call) (*model.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *c
	m.byID[c.CallID] = &clone
	m.order = append(m.order, c.CallID)
	return &clone, nil
}

func (m *memCalls) UpdateStatus(ctx context.Context, callID string, status model.CallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[callID]; ok {
		c.Status = status
	}
	return nil
}

func (m *memCalls) UpdateOutcome(ctx context.Context, callID string, status model.CallStatus, startedAt, endedAt *time.Time, duration int, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[callID]
	if !ok || c.Status.IsTerminal() {
		return nil
	}
	c.Status = status
	c.StartedAt = startedAt
	c.EndedAt = endedAt
	c.Duration = duration
	c.ErrorMessage = errorMessage
	return nil
}

func (m *memCalls) all() []model.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Call, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.byID[id])
	}
	return out
}

func (m *memCalls) countByStatus(status model.CallStatus) int {
	n := 0
	for _, c := range m.all() {
		if c.Status == status {
			n++
		}
	}
	return n
}

type stubResolver struct {
	recipients []model.Recipient
	err        error
}

func (s *stubResolver) ResolveRecipients(ctx context.Context, criteria model.TargetCriteria) ([]model.Recipient, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.recipients, nil
}

type eventCaptor struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *eventCaptor) Publish(ev events.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCaptor) withStatus(status string) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, ev := range c.events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return out
}

func makeRecipients(n int) []model.Recipient {
	out := make([]model.Recipient, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Recipient{
			EmployeeID:  int64(i),
			PhoneNumber: fmt.Sprintf("+155500000%02d", i),
		})
	}
	return out
}
