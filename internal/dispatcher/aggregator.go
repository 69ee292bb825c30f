package dispatcher

import (
	"sync"

	"github.com/nimasrn/voice-broadcast/internal/model"
)

// aggregator collects the outcome totals of one broadcast run. Workers
// report concurrently; a single mutex serializes every update so the
// statistics snapshot is always internally consistent.
type aggregator struct {
	mu sync.Mutex

	total             int
	successful        int
	failed            int
	busy              int
	noAnswer          int
	answered          int
	totalDuration     int // seconds, successful calls only
	attempts          int
	transportFailures int
}

func newAggregator(total int) *aggregator {
	return &aggregator{total: total}
}

// noteAttempt records one placement attempt, terminal or retried.
func (a *aggregator) noteAttempt(transport bool) {
	a.mu.Lock()
	a.attempts++
	if transport {
		a.transportFailures++
	}
	a.mu.Unlock()
}

// recordOutcome applies a recipient's final outcome. Called once per
// recipient, after retries are exhausted or the call succeeded. Outcomes
// beyond the audience size are dropped rather than corrupting the totals.
func (a *aggregator) recordOutcome(res AttemptResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.successful+a.failed+a.busy+a.noAnswer >= a.total {
		return
	}

	switch res.Status {
	case model.CallStatusCompleted:
		a.successful++
		a.totalDuration += res.Duration
	case model.CallStatusBusy:
		a.busy++
	case model.CallStatusNoAnswer:
		a.noAnswer++
	default:
		a.failed++
	}
	if res.Answered {
		a.answered++
	}
}

// counts returns the broadcast-level success and failure totals. Busy and
// no-answer count as failures.
func (a *aggregator) counts() (success, failure int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successful, a.failed + a.busy + a.noAnswer
}

func (a *aggregator) progress() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.ProgressPercentage(a.successful, a.failed+a.busy+a.noAnswer, a.total)
}

// gatewayUnreachable reports whether every placement of the run failed at
// the transport level, the signature of a dead bridge.
func (a *aggregator) gatewayUnreachable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts > 0 && a.transportFailures == a.attempts
}

func (a *aggregator) snapshot() model.BroadcastStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := model.BroadcastStatistics{
		TotalRecipients: a.total,
		Successful:      a.successful,
		Failed:          a.failed,
		Busy:            a.busy,
		NoAnswer:        a.noAnswer,
		Answered:        a.answered,
		TotalDuration:   a.totalDuration,
	}
	if a.successful > 0 {
		stats.AverageCallDuration = a.totalDuration / a.successful
	}
	return stats
}
