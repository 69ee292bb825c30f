package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/internal/services"
	xhttp "github.com/nimasrn/voice-broadcast/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockBroadcastService struct {
	mock.Mock
}

func (m *MockBroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) Get(ctx context.Context, id int64) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Broadcast), args.Get(1).(int64), args.Error(2)
}

func (m *MockBroadcastService) Execute(ctx context.Context, id int64, config model.DispatchConfig) (*model.ExecutionSummary, error) {
	args := m.Called(ctx, id, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutionSummary), args.Error(1)
}

func (m *MockBroadcastService) Cancel(ctx context.Context, id int64, cancelledBy, reason string) error {
	args := m.Called(ctx, id, cancelledBy, reason)
	return args.Error(0)
}

func (m *MockBroadcastService) Status(ctx context.Context, id int64) (*model.BroadcastStatusInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BroadcastStatusInfo), args.Error(1)
}

func (m *MockBroadcastService) Calls(ctx context.Context, broadcastID int64, f model.CallFilter) ([]*model.Call, int64, error) {
	args := m.Called(ctx, broadcastID, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Call), args.Get(1).(int64), args.Error(2)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func withPathID(ctx *xhttp.RequestCtx, id string) *xhttp.RequestCtx {
	ctx.SetUserValue("id", id)
	return ctx
}

func TestBroadcastHandler_CreateBroadcast(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		reqBody := createBroadcastRequest{
			Title:     "Flood warning",
			Message:   "Please avoid the riverside roads.",
			Type:      "voice",
			Criteria:  model.TargetCriteria{DistrictIDs: []int64{2}},
			CreatedBy: "ops",
		}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.BroadcastCreateRequest) bool {
			return p.Title == "Flood warning" && p.Type == model.BroadcastTypeVoice
		})).Return(&model.Broadcast{ID: 1, Title: "Flood warning", Status: model.BroadcastStatusPending}, nil)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Broadcast
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(1), response.ID)
		assert.Equal(t, model.BroadcastStatusPending, response.Status)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := setupTestContext("POST", "/broadcasts", []byte("not json"))
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("validation error", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("title is required"))

		bodyBytes, _ := json.Marshal(createBroadcastRequest{Type: "voice"})
		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_GetBroadcast(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, int64(5)).Return(&model.Broadcast{ID: 5}, nil)

		ctx := withPathID(setupTestContext("GET", "/broadcasts/5", nil), "5")
		handler.GetBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, int64(99)).Return(nil, services.ErrNotFound)

		ctx := withPathID(setupTestContext("GET", "/broadcasts/99", nil), "99")
		handler.GetBroadcast(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("bad id", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := withPathID(setupTestContext("GET", "/broadcasts/abc", nil), "abc")
		handler.GetBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_ListBroadcasts(t *testing.T) {
	t.Run("filters parsed", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.BroadcastFilter) bool {
			return len(f.Statuses) == 2 && f.Limit == 5 && f.Offset == 10 && f.Desc
		})).Return([]*model.Broadcast{}, int64(0), nil)

		ctx := setupTestContext("GET", "/broadcasts?status=pending,in_progress&limit=5&offset=10&order=desc", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("List", mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("database error"))

		ctx := setupTestContext("GET", "/broadcasts", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_ExecuteBroadcast(t *testing.T) {
	t.Run("returns execution summary", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Execute", mock.Anything, int64(3), model.DispatchConfig{}).Return(&model.ExecutionSummary{
			BroadcastID:    3,
			Status:         model.BroadcastStatusCompleted,
			TotalCalls:     8,
			CompletedCalls: 7,
			FailedCalls:    1,
		}, nil)

		ctx := withPathID(setupTestContext("POST", "/broadcasts/3/execute", nil), "3")
		handler.ExecuteBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var summary model.ExecutionSummary
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &summary))
		assert.Equal(t, int64(3), summary.BroadcastID)
		assert.Equal(t, 7, summary.CompletedCalls)
	})

	t.Run("body carries per-run overrides", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		cfg := model.DispatchConfig{MaxConcurrentCalls: 5, RetryFailedCalls: true, MaxRetries: 2}
		svc.On("Execute", mock.Anything, int64(3), cfg).
			Return(&model.ExecutionSummary{BroadcastID: 3, Status: model.BroadcastStatusCompleted}, nil)

		bodyBytes, _ := json.Marshal(cfg)
		ctx := withPathID(setupTestContext("POST", "/broadcasts/3/execute", bodyBytes), "3")
		handler.ExecuteBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("invalid override body", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := withPathID(setupTestContext("POST", "/broadcasts/3/execute", []byte("not json")), "3")
		handler.ExecuteBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("already running maps to 409", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Execute", mock.Anything, int64(3), model.DispatchConfig{}).Return(nil, services.ErrAlreadyRunning)

		ctx := withPathID(setupTestContext("POST", "/broadcasts/3/execute", nil), "3")
		handler.ExecuteBroadcast(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_CancelBroadcast(t *testing.T) {
	t.Run("cancel with audit fields", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Cancel", mock.Anything, int64(4), "admin", "event cancelled").Return(nil)

		bodyBytes, _ := json.Marshal(cancelBroadcastRequest{CancelledBy: "admin", Reason: "event cancelled"})
		ctx := withPathID(setupTestContext("POST", "/broadcasts/4/cancel", bodyBytes), "4")
		handler.CancelBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("cancel failure", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Cancel", mock.Anything, int64(4), "", "").Return(errors.New("invalid broadcast status transition"))

		ctx := withPathID(setupTestContext("POST", "/broadcasts/4/cancel", nil), "4")
		handler.CancelBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_GetBroadcastStatus(t *testing.T) {
	svc := new(MockBroadcastService)
	handler := NewBroadcastHandler(svc)

	svc.On("Status", mock.Anything, int64(6)).Return(&model.BroadcastStatusInfo{
		ID:                 6,
		Status:             model.BroadcastStatusInProgress,
		Active:             true,
		TotalRecipients:    10,
		SuccessCount:       3,
		FailureCount:       2,
		ProgressPercentage: 50,
		SuccessRate:        30,
	}, nil)

	ctx := withPathID(setupTestContext("GET", "/broadcasts/6/status", nil), "6")
	handler.GetBroadcastStatus(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var info model.BroadcastStatusInfo
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &info))
	assert.True(t, info.Active)
	assert.Equal(t, 50, info.ProgressPercentage)
}

func TestBroadcastHandler_ListBroadcastCalls(t *testing.T) {
	svc := new(MockBroadcastService)
	handler := NewBroadcastHandler(svc)

	svc.On("Calls", mock.Anything, int64(7), mock.MatchedBy(func(f model.CallFilter) bool {
		return len(f.Statuses) == 1 && f.Statuses[0] == model.CallStatusFailed
	})).Return([]*model.Call{{ID: 1, Status: model.CallStatusFailed}}, int64(1), nil)

	ctx := withPathID(setupTestContext("GET", "/broadcasts/7/calls?status=failed", nil), "7")
	handler.ListBroadcastCalls(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response listCallsResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(1), response.Total)
}

func TestHelperFunctions(t *testing.T) {
	t.Run("readJSON", func(t *testing.T) {
		data := map[string]string{"key": "value"}
		bodyBytes, _ := json.Marshal(data)
		ctx := setupTestContext("POST", "/", bodyBytes)

		var result map[string]string
		err := readJSON(ctx, &result)
		require.NoError(t, err)
		assert.Equal(t, "value", result["key"])
	})

	t.Run("writeJSON", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		writeJSON(ctx, 200, map[string]string{"message": "test"})

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.Peek("Content-Type")), "application/json")
	})

	t.Run("writeError", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		writeError(ctx, 404, "not found")

		assert.Equal(t, 404, ctx.Response.StatusCode())

		var result map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
		assert.Equal(t, "not found", result["error"])
	})

	t.Run("parseTime RFC3339", func(t *testing.T) {
		parsed, err := parseTime("2024-01-01T12:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 2024, parsed.Year())
	})

	t.Run("parseTime date only", func(t *testing.T) {
		parsed, err := parseTime("2024-01-01")
		require.NoError(t, err)
		assert.Equal(t, time.Month(1), parsed.Month())
	})

	t.Run("parseTime invalid", func(t *testing.T) {
		_, err := parseTime("invalid")
		assert.Error(t, err)
	})
}
