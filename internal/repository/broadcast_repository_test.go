package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcast() *model.Broadcast {
	return &model.Broadcast{
		Title:   "Evacuation drill",
		Message: "This is a drill, please leave the building",
		Type:    model.BroadcastTypeVoice,
		Status:  model.BroadcastStatusPending,
		Criteria: model.TargetCriteria{
			DepartmentIDs: []int64{1, 2},
		},
		CreatedBy: "ops",
	}
}

func TestBroadcastRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	t.Run("create broadcast successfully", func(t *testing.T) {
		created, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, model.BroadcastStatusPending, created.Status)
		assert.Equal(t, []int64{1, 2}, created.Criteria.DepartmentIDs)
		assert.NotZero(t, created.CreatedAt)
	})

	t.Run("criteria round-trips", func(t *testing.T) {
		b := newTestBroadcast()
		b.Criteria = model.TargetCriteria{
			EmployeeIDs: []int64{10, 11},
			GroupIDs:    []int64{5},
		}
		created, err := repo.Create(ctx, b)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 11}, got.Criteria.EmployeeIDs)
		assert.Equal(t, []int64{5}, got.Criteria.GroupIDs)
		assert.Empty(t, got.Criteria.DepartmentIDs)
	})
}

func TestBroadcastRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)

	_, err := repo.GetByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBroadcastRepository_Transitions(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	t.Run("pending to in_progress to completed", func(t *testing.T) {
		created, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)

		started := time.Now()
		require.NoError(t, repo.MarkStarted(ctx, created.ID, started))

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusInProgress, got.Status)
		require.NotNil(t, got.StartedAt)

		require.NoError(t, repo.MarkCompleted(ctx, created.ID, time.Now()))
		got, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("starting twice fails", func(t *testing.T) {
		created, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)

		require.NoError(t, repo.MarkStarted(ctx, created.ID, time.Now()))
		err = repo.MarkStarted(ctx, created.ID, time.Now())
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal broadcast cannot be cancelled", func(t *testing.T) {
		created, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)

		require.NoError(t, repo.MarkStarted(ctx, created.ID, time.Now()))
		require.NoError(t, repo.MarkCompleted(ctx, created.ID, time.Now()))

		err = repo.MarkCancelled(ctx, created.ID, "admin", "too late")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cancel records audit fields", func(t *testing.T) {
		created, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)

		require.NoError(t, repo.MarkCancelled(ctx, created.ID, "admin", "wrong audience"))
		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusCancelled, got.Status)
		assert.Equal(t, "admin", got.CancelledBy)
		assert.Equal(t, "wrong audience", got.CancelReason)
	})
}

func TestBroadcastRepository_IncrementCounters(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newTestBroadcast())
	require.NoError(t, err)
	require.NoError(t, repo.SetTotalRecipients(ctx, created.ID, 10))

	require.NoError(t, repo.IncrementCounters(ctx, created.ID, 1, 0))
	require.NoError(t, repo.IncrementCounters(ctx, created.ID, 1, 0))
	require.NoError(t, repo.IncrementCounters(ctx, created.ID, 0, 1))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalRecipients)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
}

func TestBroadcastRepository_ListDueScheduled(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := newTestBroadcast()
	due.Status = model.BroadcastStatusScheduled
	due.ScheduledAt = &past
	_, err := repo.Create(ctx, due)
	require.NoError(t, err)

	notDue := newTestBroadcast()
	notDue.Status = model.BroadcastStatusScheduled
	notDue.ScheduledAt = &future
	_, err = repo.Create(ctx, notDue)
	require.NoError(t, err)

	got, err := repo.ListDueScheduled(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.BroadcastStatusScheduled, got[0].Status)
}

func TestBroadcastRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, newTestBroadcast())
		require.NoError(t, err)
	}

	t.Run("filter by status", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.BroadcastFilter{
			Statuses: []model.BroadcastStatus{model.BroadcastStatusPending},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 5)
	})

	t.Run("pagination", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.BroadcastFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 2)
	})
}
