package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
	"gorm.io/gorm"
)

type CallRepository struct {
	*pg.DB
}

func NewCallRepository(db *pg.DB) *CallRepository {
	return &CallRepository{
		db,
	}
}

func (r *CallRepository) Create(ctx context.Context, c *model.Call) (*model.Call, error) {
	entity := toCallEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCallModel(entity), nil
}

func (r *CallRepository) GetByCallID(ctx context.Context, callID string) (*model.Call, error) {
	var entity CallEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "call_id = ?", callID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCallModel(&entity), nil
}

// UpdateOutcome writes the terminal result of an attempt. The status guard
// keeps a late duplicate event from overwriting an already-final record.
func (r *CallRepository) UpdateOutcome(ctx context.Context, callID string, status model.CallStatus, startedAt, endedAt *time.Time, duration int, errorMessage string) error {
	nonTerminal := []string{
		string(model.CallStatusPending),
		string(model.CallStatusRinging),
		string(model.CallStatusInProgress),
	}
	return r.Write(ctx).WithContext(ctx).
		Model(&CallEntity{}).
		Where("call_id = ? AND status IN ?", callID, nonTerminal).
		Updates(map[string]interface{}{
			"status":        string(status),
			"started_at":    startedAt,
			"ended_at":      endedAt,
			"duration":      duration,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		}).Error
}

// UpdateStatus records an intermediate lifecycle transition (ringing,
// in_progress) for observability; terminal writes go through UpdateOutcome.
func (r *CallRepository) UpdateStatus(ctx context.Context, callID string, status model.CallStatus) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&CallEntity{}).
		Where("call_id = ?", callID).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		}).Error
}

func (r *CallRepository) List(ctx context.Context, f model.CallFilter) ([]*model.Call, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CallEntity{})

	if f.BroadcastID != nil {
		q = q.Where("broadcast_id = ?", *f.BroadcastID)
	}
	if f.EmployeeID != nil {
		q = q.Where("employee_id = ?", *f.EmployeeID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*CallEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCallModels(entities), total, nil
}

// CountNonTerminalByBroadcast returns how many attempts of one broadcast
// have not yet reached a final outcome.
func (r *CallRepository) CountNonTerminalByBroadcast(ctx context.Context, broadcastID int64) (int64, error) {
	nonTerminal := []string{
		string(model.CallStatusPending),
		string(model.CallStatusRinging),
		string(model.CallStatusInProgress),
	}
	var n int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&CallEntity{}).
		Where("broadcast_id = ? AND status IN ?", broadcastID, nonTerminal).
		Count(&n).Error
	return n, err
}
