package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a guarded status update matched
	// no row, i.e. the broadcast was not in an allowed source state.
	ErrInvalidTransition = errors.New("invalid broadcast status transition")
)

type BroadcastRepository struct {
	*pg.DB
}

func NewBroadcastRepository(db *pg.DB) *BroadcastRepository {
	return &BroadcastRepository{
		db,
	}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error) {
	entity := toBroadcastEntity(b)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toBroadcastModel(entity), nil
}

func (r *BroadcastRepository) GetByID(ctx context.Context, id int64) (*model.Broadcast, error) {
	var entity BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toBroadcastModel(&entity), nil
}

func (r *BroadcastRepository) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&BroadcastEntity{})

	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Type != nil {
		q = q.Where("type = ?", string(*f.Type))
	}
	if f.CreatedBy != nil && *f.CreatedBy != "" {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
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

	var entities []*BroadcastEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toBroadcastModels(entities), total, nil
}

// ListDueScheduled returns scheduled broadcasts whose start time has passed.
func (r *BroadcastRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Broadcast, error) {
	var entities []*BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(model.BroadcastStatusScheduled), now).
		Order("scheduled_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toBroadcastModels(entities), nil
}

// TransitionStatus moves a broadcast to a new status, guarded by the set of
// source states the domain state machine allows. The WHERE clause makes the
// transition atomic: if another writer already moved the broadcast, zero
// rows match and ErrInvalidTransition is returned.
func (r *BroadcastRepository) TransitionStatus(ctx context.Context, id int64, from []model.BroadcastStatus, to model.BroadcastStatus, updates map[string]interface{}) error {
	sources := make([]string, 0, len(from))
	for _, s := range from {
		sources = append(sources, string(s))
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = string(to)
	updates["updated_at"] = time.Now()

	res := r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkStarted transitions to in_progress and stamps started_at.
func (r *BroadcastRepository) MarkStarted(ctx context.Context, id int64, startedAt time.Time) error {
	return r.TransitionStatus(ctx, id,
		[]model.BroadcastStatus{model.BroadcastStatusPending, model.BroadcastStatusScheduled},
		model.BroadcastStatusInProgress,
		map[string]interface{}{"started_at": startedAt})
}

// MarkCompleted transitions to completed and stamps completed_at.
func (r *BroadcastRepository) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	return r.TransitionStatus(ctx, id,
		[]model.BroadcastStatus{model.BroadcastStatusInProgress},
		model.BroadcastStatusCompleted,
		map[string]interface{}{"completed_at": completedAt})
}

// MarkFailed transitions to failed from in_progress.
func (r *BroadcastRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.TransitionStatus(ctx, id,
		[]model.BroadcastStatus{model.BroadcastStatusInProgress},
		model.BroadcastStatusFailed, nil)
}

// MarkCancelled transitions to cancelled with the audit fields.
func (r *BroadcastRepository) MarkCancelled(ctx context.Context, id int64, cancelledBy, reason string) error {
	return r.TransitionStatus(ctx, id,
		[]model.BroadcastStatus{model.BroadcastStatusPending, model.BroadcastStatusScheduled, model.BroadcastStatusInProgress},
		model.BroadcastStatusCancelled,
		map[string]interface{}{"cancelled_by": cancelledBy, "cancel_reason": reason})
}

// SetTotalRecipients fixes the resolved audience size before dispatch.
func (r *BroadcastRepository) SetTotalRecipients(ctx context.Context, id int64, total int) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Update("total_recipients", total).Error
}

// IncrementCounters applies one terminal call outcome to the running totals.
// The increment happens in SQL so concurrent workers never lose an update.
func (r *BroadcastRepository) IncrementCounters(ctx context.Context, id int64, successDelta, failureDelta int) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"success_count": gorm.Expr("success_count + ?", successDelta),
			"failure_count": gorm.Expr("failure_count + ?", failureDelta),
			"updated_at":    time.Now(),
		}).Error
}
