package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
)

type BroadcastEntity struct {
	ID              int64         `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Title           string        `db:"title"            gorm:"column:title;not null"`
	Message         string        `db:"message"          gorm:"column:message"`
	AudioFileURL    string        `db:"audio_file_url"   gorm:"column:audio_file_url"`
	Type            string        `db:"type"             gorm:"column:type;not null"`
	Status          string        `db:"status"           gorm:"column:status;not null;index"`
	Criteria        string        `db:"criteria"         gorm:"column:criteria;not null;default:'{}'"`
	ScheduledAt     *time.Time    `db:"scheduled_at"     gorm:"column:scheduled_at;index"`
	StartedAt       *time.Time    `db:"started_at"       gorm:"column:started_at"`
	CompletedAt     *time.Time    `db:"completed_at"     gorm:"column:completed_at"`
	TotalRecipients int           `db:"total_recipients" gorm:"column:total_recipients;not null;default:0"`
	SuccessCount    int           `db:"success_count"    gorm:"column:success_count;not null;default:0"`
	FailureCount    int           `db:"failure_count"    gorm:"column:failure_count;not null;default:0"`
	CreatedBy       string        `db:"created_by"       gorm:"column:created_by;not null"`
	CancelledBy     string        `db:"cancelled_by"     gorm:"column:cancelled_by"`
	CancelReason    string        `db:"cancel_reason"    gorm:"column:cancel_reason"`
	CreatedAt       time.Time     `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time     `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
	Calls           []*CallEntity `gorm:"foreignKey:BroadcastID"`
}

func (BroadcastEntity) TableName() string { return "broadcasts" }

func toBroadcastEntity(b *model.Broadcast) *BroadcastEntity {
	criteria, _ := json.Marshal(b.Criteria)
	return &BroadcastEntity{
		ID:              b.ID,
		Title:           b.Title,
		Message:         b.Message,
		AudioFileURL:    b.AudioFileURL,
		Type:            string(b.Type),
		Status:          string(b.Status),
		Criteria:        string(criteria),
		ScheduledAt:     b.ScheduledAt,
		StartedAt:       b.StartedAt,
		CompletedAt:     b.CompletedAt,
		TotalRecipients: b.TotalRecipients,
		SuccessCount:    b.SuccessCount,
		FailureCount:    b.FailureCount,
		CreatedBy:       b.CreatedBy,
		CancelledBy:     b.CancelledBy,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toBroadcastModel(e *BroadcastEntity) *model.Broadcast {
	var criteria model.TargetCriteria
	_ = json.Unmarshal([]byte(e.Criteria), &criteria)
	return &model.Broadcast{
		ID:              e.ID,
		Title:           e.Title,
		Message:         e.Message,
		AudioFileURL:    e.AudioFileURL,
		Type:            model.BroadcastType(e.Type),
		Status:          model.BroadcastStatus(e.Status),
		Criteria:        criteria,
		ScheduledAt:     e.ScheduledAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		TotalRecipients: e.TotalRecipients,
		SuccessCount:    e.SuccessCount,
		FailureCount:    e.FailureCount,
		CreatedBy:       e.CreatedBy,
		CancelledBy:     e.CancelledBy,
		CancelReason:    e.CancelReason,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func toBroadcastModels(entities []*BroadcastEntity) []*model.Broadcast {
	out := make([]*model.Broadcast, 0, len(entities))
	for _, e := range entities {
		out = append(out, toBroadcastModel(e))
	}
	return out
}
