package model

import (
	"errors"
	"time"
)

// DispatchConfig tunes one broadcast execution. It is per-run input, not
// persisted state.
type DispatchConfig struct {
	MaxConcurrentCalls int  `json:"max_concurrent_calls"`
	CallTimeoutSeconds int  `json:"call_timeout_seconds"`
	RetryFailedCalls   bool `json:"retry_failed_calls"`
	MaxRetries         int  `json:"max_retries"`
}

func (c DispatchConfig) Validate() error {
	if c.MaxConcurrentCalls < 1 {
		return errors.New("max_concurrent_calls must be at least 1")
	}
	if c.CallTimeoutSeconds < 1 {
		return errors.New("call_timeout_seconds must be at least 1")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	return nil
}

func (c DispatchConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// BroadcastStatistics is the per-run outcome breakdown reported alongside
// the execution summary.
type BroadcastStatistics struct {
	TotalRecipients     int `json:"total_recipients"`
	Successful          int `json:"successful"`
	Failed              int `json:"failed"`
	Busy                int `json:"busy"`
	NoAnswer            int `json:"no_answer"`
	Answered            int `json:"answered"`
	TotalDuration       int `json:"total_duration"`        // seconds
	AverageCallDuration int `json:"average_call_duration"` // seconds, over successful calls
}

// ExecutionSummary is what Execute returns for one broadcast run. It is
// populated even when the run fails, with partial counts and the cause.
type ExecutionSummary struct {
	BroadcastID    int64               `json:"broadcast_id"`
	Status         BroadcastStatus     `json:"status"`
	TotalCalls     int                 `json:"total_calls"`
	CompletedCalls int                 `json:"completed_calls"`
	FailedCalls    int                 `json:"failed_calls"`
	ExecutionTime  time.Duration       `json:"execution_time"`
	Statistics     BroadcastStatistics `json:"statistics"`
	Error          string              `json:"error,omitempty"`
}
