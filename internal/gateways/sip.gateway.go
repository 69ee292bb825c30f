package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/queue"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
	"github.com/valyala/fasthttp"
)

// BridgeState is the observed health of the SIP bridge.
type BridgeState int

const (
	StateHealthy BridgeState = iota
	StateDegraded
	StateUnreachable
)

// BridgeHealth tracks placement outcomes against the bridge. Consecutive
// transport failures flip the state to degraded and then unreachable; a
// single success resets it.
type BridgeHealth struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	ConsecutiveFails atomic.Int32
	LastSuccessTime  atomic.Int64
	LastErrorTime    atomic.Int64

	state atomic.Int32

	degradedAfter    int32
	unreachableAfter int32
}

func NewBridgeHealth(degradedAfter, unreachableAfter int32) *BridgeHealth {
	h := &BridgeHealth{
		degradedAfter:    degradedAfter,
		unreachableAfter: unreachableAfter,
	}
	h.state.Store(int32(StateHealthy))
	return h
}

func (h *BridgeHealth) RecordSuccess() {
	h.TotalRequests.Add(1)
	h.SuccessfulReqs.Add(1)
	h.ConsecutiveFails.Store(0)
	h.LastSuccessTime.Store(time.Now().Unix())
	h.state.Store(int32(StateHealthy))
}

func (h *BridgeHealth) RecordFailure() {
	h.TotalRequests.Add(1)
	h.FailedReqs.Add(1)
	h.LastErrorTime.Store(time.Now().Unix())

	fails := h.ConsecutiveFails.Add(1)
	switch {
	case fails >= h.unreachableAfter:
		h.state.Store(int32(StateUnreachable))
	case fails >= h.degradedAfter:
		h.state.Store(int32(StateDegraded))
	}
}

func (h *BridgeHealth) State() BridgeState {
	return BridgeState(h.state.Load())
}

func (h *BridgeHealth) SuccessRate() float64 {
	total := h.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(h.SuccessfulReqs.Load()) / float64(total)
}

// SIPGatewayConfig configures the HTTP client toward the SIP bridge and
// the event feed it reports call progress on.
type SIPGatewayConfig struct {
	BaseURL          string
	RequestTimeout   time.Duration
	MaxConns         int
	EventBuffer      int // per-attempt event channel capacity
	DegradedAfter    int32
	UnreachableAfter int32
}

// SIPGateway places calls through an HTTP SIP bridge and routes the
// bridge's asynchronous call events, delivered over a redis stream, to the
// per-attempt channels handed out by PlaceCall.
type SIPGateway struct {
	config SIPGatewayConfig
	client *fasthttp.Client
	health *BridgeHealth
	feed   *queue.Stream

	mu     sync.Mutex
	routes map[string]chan CallEvent
}

type placeCallResponse struct {
	Handle    string `json:"handle"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_message,omitempty"`
}

func NewSIPGateway(config SIPGatewayConfig, feed *queue.Stream) (*SIPGateway, error) {
	if config.BaseURL == "" {
		return nil, errors.New("bridge base url is required")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 8
	}
	if config.DegradedAfter <= 0 {
		config.DegradedAfter = 3
	}
	if config.UnreachableAfter <= 0 {
		config.UnreachableAfter = 10
	}

	g := &SIPGateway{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.RequestTimeout,
			WriteTimeout:        config.RequestTimeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		health: NewBridgeHealth(config.DegradedAfter, config.UnreachableAfter),
		feed:   feed,
		routes: make(map[string]chan CallEvent),
	}

	if feed != nil {
		if err := feed.Consume(g.routeEvent); err != nil {
			return nil, fmt.Errorf("failed to start event feed consumer: %w", err)
		}
	}

	logger.Info("SIP gateway client initialized", "base_url", config.BaseURL, "timeout", config.RequestTimeout)

	return g, nil
}

func (g *SIPGateway) Health() *BridgeHealth {
	return g.health
}

// PlaceCall asks the bridge to dial the recipient. On success the returned
// attempt carries the channel subsequent events for the handle are routed
// to.
func (g *SIPGateway) PlaceCall(ctx context.Context, req PlaceRequest) (*Attempt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal place request: %w", err)
	}

	status, respBody, err := g.doRequest(ctx, "POST", "/api/v1/calls", body)
	if err != nil {
		g.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	g.health.RecordSuccess()

	var resp placeCallResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal place response: %w", err)
	}

	if status != fasthttp.StatusOK || resp.Handle == "" {
		return nil, &PlacementError{Code: resp.ErrorCode, Message: resp.ErrorMsg}
	}

	events := make(chan CallEvent, g.config.EventBuffer)
	g.mu.Lock()
	g.routes[resp.Handle] = events
	g.mu.Unlock()

	return &Attempt{Handle: resp.Handle, Events: events}, nil
}

// Hangup tears down an in-flight attempt at the bridge.
func (g *SIPGateway) Hangup(ctx context.Context, handle string) error {
	_, _, err := g.doRequest(ctx, "POST", "/api/v1/calls/"+handle+"/hangup", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

// Release drops the event route for a finished attempt. The lifecycle
// controller calls it once the attempt reached a terminal outcome; late
// events for the handle are discarded.
func (g *SIPGateway) Release(handle string) {
	g.mu.Lock()
	events, ok := g.routes[handle]
	if ok {
		delete(g.routes, handle)
	}
	g.mu.Unlock()
	if ok {
		close(events)
	}
}

// routeEvent is the feed handler: it decodes one bridge event and hands it
// to the attempt that owns the handle. Events for unknown handles are
// acknowledged and dropped, the attempt is already finished.
func (g *SIPGateway) routeEvent(ctx context.Context, d queue.Delivery) error {
	var ev CallEvent
	if err := json.Unmarshal(d.Data, &ev); err != nil {
		logger.Error("failed to decode gateway event", "error", err)
		return nil // malformed entries won't improve on redelivery
	}

	// The send stays under the lock so Release cannot close the channel
	// between the lookup and the send. It is non-blocking, so holding the
	// lock here never stalls placements.
	g.mu.Lock()
	events, ok := g.routes[ev.Handle]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	delivered := false
	select {
	case events <- ev:
		delivered = true
	default:
	}
	g.mu.Unlock()

	if !delivered {
		// The attempt owner stopped reading; drop rather than stall the feed.
		logger.Warn("dropping gateway event, attempt channel full", "handle", ev.Handle, "type", string(ev.Type))
	}
	return nil
}

func (g *SIPGateway) doRequest(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline := time.Now().Add(g.config.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}
