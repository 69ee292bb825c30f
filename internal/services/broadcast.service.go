package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/dispatcher"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/internal/repository"
)

var (
	ErrNotFound       = errors.New("broadcast not found")
	ErrScheduleInPast = errors.New("scheduled_at must be in the future")
	ErrAlreadyRunning = errors.New("broadcast is already executing")
)

type BroadcastRepository interface {
	Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error)
	GetByID(ctx context.Context, id int64) (*model.Broadcast, error)
	List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) // results, totalCount
	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Broadcast, error)
}

type CallRepository interface {
	List(ctx context.Context, f model.CallFilter) ([]*model.Call, int64, error)
}

// Executor is the dispatch capability behind the service: it runs,
// cancels and tracks broadcast executions.
type Executor interface {
	Execute(ctx context.Context, broadcastID int64, config model.DispatchConfig) (*model.ExecutionSummary, error)
	Cancel(ctx context.Context, broadcastID int64, cancelledBy, reason string) error
	Running(broadcastID int64) bool
}

type BroadcastService struct {
	broadcastRepo BroadcastRepository
	callRepo      CallRepository
	executor      Executor
}

func NewBroadcastService(broadcastRepo BroadcastRepository, callRepo CallRepository, executor Executor) *BroadcastService {
	return &BroadcastService{
		broadcastRepo: broadcastRepo,
		callRepo:      callRepo,
		executor:      executor,
	}
}

// Create validates and stores a new broadcast. A future scheduled_at
// parks it as scheduled for the scheduler to pick up; otherwise it is
// created pending, waiting for an explicit execute.
func (s *BroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Message = strings.TrimSpace(p.Message)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	status := model.BroadcastStatusPending
	if p.ScheduledAt != nil {
		if !p.ScheduledAt.After(time.Now()) {
			return nil, ErrScheduleInPast
		}
		status = model.BroadcastStatusScheduled
	}

	b := &model.Broadcast{
		Title:        p.Title,
		Message:      p.Message,
		AudioFileURL: p.AudioFileURL,
		Type:         p.Type,
		Status:       status,
		Criteria:     p.Criteria,
		ScheduledAt:  p.ScheduledAt,
		CreatedBy:    p.CreatedBy,
	}
	return s.broadcastRepo.Create(ctx, b)
}

func (s *BroadcastService) Get(ctx context.Context, id int64) (*model.Broadcast, error) {
	b, err := s.broadcastRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BroadcastService) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	return s.broadcastRepo.List(ctx, f)
}

// Execute runs the broadcast synchronously and returns its summary.
// config carries per-run overrides; a zero value runs with the configured
// defaults.
func (s *BroadcastService) Execute(ctx context.Context, id int64, config model.DispatchConfig) (*model.ExecutionSummary, error) {
	summary, err := s.executor.Execute(ctx, id, config)
	if errors.Is(err, dispatcher.ErrBroadcastActive) {
		return summary, ErrAlreadyRunning
	}
	return summary, err
}

func (s *BroadcastService) Cancel(ctx context.Context, id int64, cancelledBy, reason string) error {
	return s.executor.Cancel(ctx, id, cancelledBy, reason)
}

// Status returns the live progress view, including whether an execution
// is active right now.
func (s *BroadcastService) Status(ctx context.Context, id int64) (*model.BroadcastStatusInfo, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.BroadcastStatusInfo{
		ID:                 b.ID,
		Status:             b.Status,
		Active:             s.executor.Running(b.ID),
		TotalRecipients:    b.TotalRecipients,
		SuccessCount:       b.SuccessCount,
		FailureCount:       b.FailureCount,
		ProgressPercentage: model.ProgressPercentage(b.SuccessCount, b.FailureCount, b.TotalRecipients),
		SuccessRate:        model.SuccessRate(b.SuccessCount, b.TotalRecipients),
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
	}, nil
}

// Calls lists the call attempts of one broadcast.
func (s *BroadcastService) Calls(ctx context.Context, broadcastID int64, f model.CallFilter) ([]*model.Call, int64, error) {
	f.BroadcastID = &broadcastID
	return s.callRepo.List(ctx, f)
}
