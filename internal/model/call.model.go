package model

import "time"

// CallStatus is the lifecycle state of a single call attempt.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
)

// IsTerminal reports whether the attempt has reached a final outcome.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// IsSuccess reports whether the outcome counts toward a broadcast's
// success total. Only a completed playback counts.
func (s CallStatus) IsSuccess() bool {
	return s == CallStatusCompleted
}

// Call is one placement of a voice call to one recipient. BroadcastID is
// nil for calls placed outside a broadcast run.
type Call struct {
	ID           int64      `json:"id"`
	CallID       string     `json:"call_id"` // external attempt handle
	BroadcastID  *int64     `json:"broadcast_id,omitempty"`
	EmployeeID   int64      `json:"employee_id"`
	PhoneNumber  string     `json:"phone_number"`
	Status       CallStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Duration     int        `json:"duration"` // seconds
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CallDuration computes the attempt duration in whole seconds. Attempts
// that never started (placement rejected outright) have zero duration.
func CallDuration(startedAt, endedAt *time.Time) int {
	if startedAt == nil || endedAt == nil {
		return 0
	}
	d := endedAt.Sub(*startedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// CallFilter controls call listing.
type CallFilter struct {
	BroadcastID *int64
	EmployeeID  *int64
	Statuses    []CallStatus
	Limit       int
	Offset      int
	Desc        bool
}
