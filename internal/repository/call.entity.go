package repository

import (
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
)

type CallEntity struct {
	ID           int64      `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CallID       string     `db:"call_id"       gorm:"column:call_id;not null;uniqueIndex"`
	BroadcastID  *int64     `db:"broadcast_id"  gorm:"column:broadcast_id;index"`
	EmployeeID   int64      `db:"employee_id"   gorm:"column:employee_id;not null;index"`
	PhoneNumber  string     `db:"phone_number"  gorm:"column:phone_number;not null"`
	Status       string     `db:"status"        gorm:"column:status;not null;index"`
	Attempts     int        `db:"attempts"      gorm:"column:attempts;not null;default:0"`
	StartedAt    *time.Time `db:"started_at"    gorm:"column:started_at"`
	EndedAt      *time.Time `db:"ended_at"      gorm:"column:ended_at"`
	Duration     int        `db:"duration"      gorm:"column:duration;not null;default:0"`
	ErrorMessage string     `db:"error_message" gorm:"column:error_message"`
	CreatedAt    time.Time  `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `db:"updated_at"    gorm:"column:updated_at;autoUpdateTime"`
}

func (CallEntity) TableName() string { return "calls" }

func toCallEntity(c *model.Call) *CallEntity {
	return &CallEntity{
		ID:           c.ID,
		CallID:       c.CallID,
		BroadcastID:  c.BroadcastID,
		EmployeeID:   c.EmployeeID,
		PhoneNumber:  c.PhoneNumber,
		Status:       string(c.Status),
		Attempts:     c.Attempts,
		StartedAt:    c.StartedAt,
		EndedAt:      c.EndedAt,
		Duration:     c.Duration,
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toCallModel(e *CallEntity) *model.Call {
	return &model.Call{
		ID:           e.ID,
		CallID:       e.CallID,
		BroadcastID:  e.BroadcastID,
		EmployeeID:   e.EmployeeID,
		PhoneNumber:  e.PhoneNumber,
		Status:       model.CallStatus(e.Status),
		Attempts:     e.Attempts,
		StartedAt:    e.StartedAt,
		EndedAt:      e.EndedAt,
		Duration:     e.Duration,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toCallModels(entities []*CallEntity) []*model.Call {
	out := make([]*model.Call, 0, len(entities))
	for _, e := range entities {
		out = append(out, toCallModel(e))
	}
	return out
}
