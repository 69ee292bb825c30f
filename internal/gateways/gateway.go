package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrGatewayUnavailable marks a transport-level failure: the bridge
	// could not be reached at all. The dispatcher escalates a run where
	// every placement fails this way.
	ErrGatewayUnavailable = errors.New("call gateway unavailable")
)

// PlacementError is a rejection from the gateway itself: the bridge was
// reachable but refused to place the call.
type PlacementError struct {
	Code    string
	Message string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("call placement rejected (%s): %s", e.Code, e.Message)
}

// CallEventType enumerates the events a gateway emits for one attempt.
type CallEventType string

const (
	EventAnswered CallEventType = "answered"
	EventBusy     CallEventType = "busy"
	EventNoAnswer CallEventType = "no-answer"
	EventEnded    CallEventType = "ended"
)

// CallEvent is one asynchronous signal about an in-flight attempt.
// For EventEnded, Error is empty on a normal hangup and carries the
// gateway's reason when the call ended abnormally.
type CallEvent struct {
	Handle    string        `json:"handle"`
	Type      CallEventType `json:"type"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// PlaceRequest describes one outbound call placement.
type PlaceRequest struct {
	CallID       string `json:"call_id"`
	PhoneNumber  string `json:"phone_number"`
	Message      string `json:"message,omitempty"`
	AudioFileURL string `json:"audio_file_url,omitempty"`
}

// Attempt is a placed call: an opaque handle plus the event stream the
// lifecycle controller consumes. The channel is closed when the gateway
// will emit no further events for the attempt.
type Attempt struct {
	Handle string
	Events <-chan CallEvent
}

// CallGateway is the telephony capability the dispatcher consumes. The
// wire protocol behind it is out of scope; implementations translate
// PlaceCall into whatever the bridge speaks.
type CallGateway interface {
	PlaceCall(ctx context.Context, req PlaceRequest) (*Attempt, error)
	Hangup(ctx context.Context, handle string) error
}
