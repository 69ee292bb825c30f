package dispatcher

import (
	"testing"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestAggregator_OutcomeBuckets(t *testing.T) {
	agg := newAggregator(5)

	agg.recordOutcome(AttemptResult{Status: model.CallStatusCompleted, Answered: true, Duration: 30})
	agg.recordOutcome(AttemptResult{Status: model.CallStatusCompleted, Answered: true, Duration: 10})
	agg.recordOutcome(AttemptResult{Status: model.CallStatusBusy})
	agg.recordOutcome(AttemptResult{Status: model.CallStatusNoAnswer})
	agg.recordOutcome(AttemptResult{Status: model.CallStatusFailed, Answered: true})

	success, failure := agg.counts()
	assert.Equal(t, 2, success)
	assert.Equal(t, 3, failure)
	assert.Equal(t, 100, agg.progress())

	stats := agg.snapshot()
	assert.Equal(t, 5, stats.TotalRecipients)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 1, stats.NoAnswer)
	assert.Equal(t, 3, stats.Answered)
	assert.Equal(t, 40, stats.TotalDuration)
	assert.Equal(t, 20, stats.AverageCallDuration)
}

func TestAggregator_NoSuccessfulCallsNoAverage(t *testing.T) {
	agg := newAggregator(1)
	agg.recordOutcome(AttemptResult{Status: model.CallStatusBusy})

	stats := agg.snapshot()
	assert.Equal(t, 0, stats.AverageCallDuration)
	assert.Equal(t, 0, stats.TotalDuration)
}

func TestAggregator_ClampsToAudienceSize(t *testing.T) {
	agg := newAggregator(1)
	agg.recordOutcome(AttemptResult{Status: model.CallStatusCompleted, Answered: true})
	agg.recordOutcome(AttemptResult{Status: model.CallStatusFailed})

	success, failure := agg.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failure)
	assert.Equal(t, 100, agg.progress())
}

func TestAggregator_GatewayUnreachable(t *testing.T) {
	agg := newAggregator(2)
	assert.False(t, agg.gatewayUnreachable(), "no attempts yet")

	agg.noteAttempt(true)
	agg.noteAttempt(true)
	assert.True(t, agg.gatewayUnreachable())

	agg.noteAttempt(false)
	assert.False(t, agg.gatewayUnreachable(), "one placement reached the bridge")
}

func TestAggregator_ProgressPartial(t *testing.T) {
	agg := newAggregator(3)
	assert.Equal(t, 0, agg.progress())

	agg.recordOutcome(AttemptResult{Status: model.CallStatusCompleted})
	assert.Equal(t, 33, agg.progress())

	agg.recordOutcome(AttemptResult{Status: model.CallStatusFailed})
	assert.Equal(t, 67, agg.progress())
}
