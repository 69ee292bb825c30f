package model

import (
	"errors"
	"math"
	"time"
)

// BroadcastStatus is the lifecycle state of a broadcast campaign.
type BroadcastStatus string

const (
	BroadcastStatusPending    BroadcastStatus = "pending"
	BroadcastStatusScheduled  BroadcastStatus = "scheduled"
	BroadcastStatusInProgress BroadcastStatus = "in_progress"
	BroadcastStatusCompleted  BroadcastStatus = "completed"
	BroadcastStatusFailed     BroadcastStatus = "failed"
	BroadcastStatusCancelled  BroadcastStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s BroadcastStatus) IsTerminal() bool {
	return s == BroadcastStatusCompleted || s == BroadcastStatusFailed || s == BroadcastStatusCancelled
}

type BroadcastType string

const (
	BroadcastTypeVoice BroadcastType = "voice"
	BroadcastTypeSMS   BroadcastType = "sms"
)

// TargetCriteria selects the audience of a broadcast. Criteria combine with
// union semantics; an employee matched by more than one criterion is
// contacted once.
type TargetCriteria struct {
	EmployeeIDs   []int64 `json:"employee_ids,omitempty"`
	DepartmentIDs []int64 `json:"department_ids,omitempty"`
	DistrictIDs   []int64 `json:"district_ids,omitempty"`
	GroupIDs      []int64 `json:"group_ids,omitempty"`
}

func (c TargetCriteria) Empty() bool {
	return len(c.EmployeeIDs) == 0 && len(c.DepartmentIDs) == 0 &&
		len(c.DistrictIDs) == 0 && len(c.GroupIDs) == 0
}

type Broadcast struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Message         string          `json:"message"`
	AudioFileURL    string          `json:"audio_file_url,omitempty"`
	Type            BroadcastType   `json:"type"`
	Status          BroadcastStatus `json:"status"`
	Criteria        TargetCriteria  `json:"criteria"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	TotalRecipients int             `json:"total_recipients"`
	SuccessCount    int             `json:"success_count"`
	FailureCount    int             `json:"failure_count"`
	CreatedBy       string          `json:"created_by"`
	CancelledBy     string          `json:"cancelled_by,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CanTransition reports whether a broadcast may move from one status to
// another. Terminal states accept no transitions.
func CanTransition(from, to BroadcastStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case BroadcastStatusInProgress:
		return from == BroadcastStatusPending || from == BroadcastStatusScheduled
	case BroadcastStatusCompleted, BroadcastStatusFailed:
		return from == BroadcastStatusInProgress
	case BroadcastStatusCancelled:
		return from == BroadcastStatusPending || from == BroadcastStatusScheduled || from == BroadcastStatusInProgress
	case BroadcastStatusScheduled:
		return from == BroadcastStatusPending
	}
	return false
}

// ProgressPercentage returns how much of the audience has reached a final
// outcome, rounded to the nearest integer. Zero when the audience is empty.
func ProgressPercentage(successCount, failureCount, totalRecipients int) int {
	if totalRecipients <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(successCount+failureCount) / float64(totalRecipients)))
}

// SuccessRate returns the share of the audience reached successfully,
// rounded to the nearest integer. Zero when the audience is empty.
func SuccessRate(successCount, totalRecipients int) int {
	if totalRecipients <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(successCount) / float64(totalRecipients)))
}

// BroadcastStatusInfo is the live progress view of one broadcast.
type BroadcastStatusInfo struct {
	ID                 int64           `json:"id"`
	Status             BroadcastStatus `json:"status"`
	Active             bool            `json:"active"`
	TotalRecipients    int             `json:"total_recipients"`
	SuccessCount       int             `json:"success_count"`
	FailureCount       int             `json:"failure_count"`
	ProgressPercentage int             `json:"progress_percentage"`
	SuccessRate        int             `json:"success_rate"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// BroadcastCreateRequest is the input for creating a broadcast.
type BroadcastCreateRequest struct {
	Title        string
	Message      string
	AudioFileURL string
	Type         BroadcastType
	Criteria     TargetCriteria
	ScheduledAt  *time.Time
	CreatedBy    string
}

func (p BroadcastCreateRequest) Validate() error {
	if p.Title == "" {
		return errors.New("title is required")
	}
	if p.Type != BroadcastTypeVoice && p.Type != BroadcastTypeSMS {
		return errors.New("type must be voice or sms")
	}
	if p.Type == BroadcastTypeVoice && p.Message == "" && p.AudioFileURL == "" {
		return errors.New("voice broadcast requires a message or an audio file")
	}
	if p.Criteria.Empty() {
		return errors.New("at least one targeting criterion is required")
	}
	if p.CreatedBy == "" {
		return errors.New("created_by is required")
	}
	return nil
}

// BroadcastFilter controls List queries.
type BroadcastFilter struct {
	Statuses  []BroadcastStatus // IN (...)
	Type      *BroadcastType
	CreatedBy *string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
	Desc      bool // order by created_at
}
