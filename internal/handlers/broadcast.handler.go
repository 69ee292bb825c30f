package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/internal/services"
	xhttp "github.com/nimasrn/voice-broadcast/pkg/http"
)

type BroadcastService interface {
	Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error)
	Get(ctx context.Context, id int64) (*model.Broadcast, error)
	List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error)
	Execute(ctx context.Context, id int64, config model.DispatchConfig) (*model.ExecutionSummary, error)
	Cancel(ctx context.Context, id int64, cancelledBy, reason string) error
	Status(ctx context.Context, id int64) (*model.BroadcastStatusInfo, error)
	Calls(ctx context.Context, broadcastID int64, f model.CallFilter) ([]*model.Call, int64, error)
}

type BroadcastHandler struct {
	svc BroadcastService
}

func RegisterBroadcastRoutes(e *router.Group, h *BroadcastHandler) {
	e.POST("/broadcasts", h.CreateBroadcast)
	e.GET("/broadcasts", h.ListBroadcasts)
	e.GET("/broadcasts/{id}", h.GetBroadcast)
	e.POST("/broadcasts/{id}/execute", h.ExecuteBroadcast)
	e.POST("/broadcasts/{id}/cancel", h.CancelBroadcast)
	e.GET("/broadcasts/{id}/status", h.GetBroadcastStatus)
	e.GET("/broadcasts/{id}/calls", h.ListBroadcastCalls)
}

func NewBroadcastHandler(broadcastService BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{
		svc: broadcastService,
	}
}

type createBroadcastRequest struct {
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	AudioFileURL string               `json:"audio_file_url"`
	Type         string               `json:"type"`
	Criteria     model.TargetCriteria `json:"criteria"`
	ScheduledAt  *time.Time           `json:"scheduled_at"`
	CreatedBy    string               `json:"created_by"`
}

type cancelBroadcastRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason"`
}

type listBroadcastsResponse struct {
	Items []*model.Broadcast `json:"items"`
	Total int64              `json:"total"`
}

type listCallsResponse struct {
	Items []*model.Call `json:"items"`
	Total int64         `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *BroadcastHandler) CreateBroadcast(ctx *xhttp.RequestCtx) {
	var req createBroadcastRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	p := model.BroadcastCreateRequest{
		Title:        req.Title,
		Message:      req.Message,
		AudioFileURL: req.AudioFileURL,
		Type:         model.BroadcastType(req.Type),
		Criteria:     req.Criteria,
		ScheduledAt:  req.ScheduledAt,
		CreatedBy:    req.CreatedBy,
	}
	b, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, b)
}

func (h *BroadcastHandler) GetBroadcast(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid broadcast id")
		return
	}
	b, err := h.svc.Get(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, 200, b)
}

func (h *BroadcastHandler) ListBroadcasts(ctx *xhttp.RequestCtx) {
	var f model.BroadcastFilter

	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.BroadcastStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "type"); v != "" {
		bt := model.BroadcastType(v)
		f.Type = &bt
	}
	if v := query(ctx, "created_by"); v != "" {
		f.CreatedBy = &v
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listBroadcastsResponse{Items: items, Total: total})
}

// ExecuteBroadcast runs the broadcast synchronously and responds with the
// execution summary once every recipient has a final outcome. The optional
// body carries per-run dispatch overrides (max_concurrent_calls,
// call_timeout_seconds, retry_failed_calls, max_retries).
func (h *BroadcastHandler) ExecuteBroadcast(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid broadcast id")
		return
	}

	var cfg model.DispatchConfig
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &cfg); err != nil {
			writeError(ctx, 400, "invalid JSON: "+err.Error())
			return
		}
	}

	summary, err := h.svc.Execute(ctx, id, cfg)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, 200, summary)
}

func (h *BroadcastHandler) CancelBroadcast(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid broadcast id")
		return
	}

	var req cancelBroadcastRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, 400, "invalid JSON: "+err.Error())
			return
		}
	}

	if err := h.svc.Cancel(ctx, id, req.CancelledBy, req.Reason); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": string(model.BroadcastStatusCancelled)})
}

func (h *BroadcastHandler) GetBroadcastStatus(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid broadcast id")
		return
	}
	info, err := h.svc.Status(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, 200, info)
}

func (h *BroadcastHandler) ListBroadcastCalls(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid broadcast id")
		return
	}

	var f model.CallFilter
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.CallStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.Calls(ctx, id, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listCallsResponse{Items: items, Total: total})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return 404
	case errors.Is(err, services.ErrAlreadyRunning):
		return 409
	default:
		return 400
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathID(ctx *xhttp.RequestCtx) (int64, error) {
	v, _ := ctx.UserValue("id").(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
