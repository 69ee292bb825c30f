package dispatcher

import (
	"context"
	"errors"
	"time"

	gateway "github.com/nimasrn/voice-broadcast/internal/gateways"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
)

// AttemptResult is the terminal outcome of one call attempt. Transport
// marks a placement that never reached the bridge; StartedAt and EndedAt
// are set only for answered calls.
type AttemptResult struct {
	Status       model.CallStatus
	Answered     bool
	StartedAt    *time.Time
	EndedAt      *time.Time
	Duration     int
	ErrorMessage string
	Transport    bool
}

// releaser is implemented by gateways that keep per-handle event routes.
type releaser interface {
	Release(handle string)
}

// lifecycle drives one attempt from placement to a terminal status. The
// first terminal signal wins: a ring timeout that fires concurrently with
// an answered event settles on whichever this loop observes first, and
// everything after the decision is discarded.
type lifecycle struct {
	gateway gateway.CallGateway
}

// Run places the call and consumes gateway events until the attempt is
// terminal. onTransition is invoked for the intermediate ringing and
// in_progress states so the caller can persist and publish them.
func (l *lifecycle) Run(ctx context.Context, req gateway.PlaceRequest, ringTimeout time.Duration, onTransition func(model.CallStatus)) AttemptResult {
	attempt, err := l.gateway.PlaceCall(ctx, req)
	if err != nil {
		return AttemptResult{
			Status:       model.CallStatusFailed,
			ErrorMessage: err.Error(),
			Transport:    errors.Is(err, gateway.ErrGatewayUnavailable),
		}
	}
	defer func() {
		if r, ok := l.gateway.(releaser); ok {
			r.Release(attempt.Handle)
		}
	}()

	onTransition(model.CallStatusRinging)

	ring := time.NewTimer(ringTimeout)
	defer ring.Stop()
	ringC := ring.C

	answered := false
	var startedAt *time.Time

	for {
		select {
		case <-ctx.Done():
			l.hangup(attempt.Handle)
			return l.terminal(answered, startedAt, model.CallStatusFailed, "dispatch aborted: "+ctx.Err().Error())

		case <-ringC:
			l.hangup(attempt.Handle)
			return AttemptResult{Status: model.CallStatusNoAnswer, ErrorMessage: "ring timeout"}

		case ev, ok := <-attempt.Events:
			if !ok {
				return l.terminal(answered, startedAt, model.CallStatusFailed, "gateway closed event stream")
			}

			switch ev.Type {
			case gateway.EventAnswered:
				if answered {
					continue
				}
				answered = true
				now := time.Now()
				startedAt = &now
				ring.Stop()
				ringC = nil
				onTransition(model.CallStatusInProgress)

			case gateway.EventBusy:
				if answered {
					continue
				}
				return AttemptResult{Status: model.CallStatusBusy}

			case gateway.EventNoAnswer:
				if answered {
					continue
				}
				return AttemptResult{Status: model.CallStatusNoAnswer}

			case gateway.EventEnded:
				if !answered {
					msg := ev.Error
					if msg == "" {
						msg = "call ended before answer"
					}
					return AttemptResult{Status: model.CallStatusFailed, ErrorMessage: msg}
				}
				if ev.Error != "" {
					return l.terminal(true, startedAt, model.CallStatusFailed, ev.Error)
				}
				return l.terminal(true, startedAt, model.CallStatusCompleted, "")
			}
		}
	}
}

func (l *lifecycle) terminal(answered bool, startedAt *time.Time, status model.CallStatus, errMsg string) AttemptResult {
	res := AttemptResult{Status: status, Answered: answered, ErrorMessage: errMsg}
	if answered {
		now := time.Now()
		res.StartedAt = startedAt
		res.EndedAt = &now
		res.Duration = model.CallDuration(startedAt, &now)
	}
	return res
}

func (l *lifecycle) hangup(handle string) {
	// Detached context: the attempt's own context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.gateway.Hangup(ctx, handle); err != nil {
		logger.Warn("failed to hang up attempt", "handle", handle, "error", err)
	}
}
