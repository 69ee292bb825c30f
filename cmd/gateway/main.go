package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gw "github.com/nimasrn/voice-broadcast/internal/gateways"
	"github.com/nimasrn/voice-broadcast/internal/queue"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PlaceCallRequest is what the engine posts to dial one recipient.
type PlaceCallRequest struct {
	CallID       string `json:"call_id" binding:"required"`
	PhoneNumber  string `json:"phone_number" binding:"required"`
	Message      string `json:"message"`
	AudioFileURL string `json:"audio_file_url"`
}

// PlaceCallResponse mirrors the bridge's placement reply.
type PlaceCallResponse struct {
	Handle    string `json:"handle,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_message,omitempty"`
}

// MockBridge simulates a SIP bridge: it accepts placements over HTTP and
// reports ringing outcomes asynchronously on the gateway event stream.
type MockBridge struct {
	answerRate float64
	busyRate   float64
	rejectRate float64
	minRing    time.Duration
	maxRing    time.Duration
	minTalk    time.Duration
	maxTalk    time.Duration
	bridgeID   string

	feed *queue.Stream

	mu     sync.Mutex
	rng    *rand.Rand
	active map[string]context.CancelFunc
}

func NewMockBridge(feed *queue.Stream, answerRate, busyRate, rejectRate float64, minRing, maxRing, minTalk, maxTalk time.Duration) *MockBridge {
	return &MockBridge{
		answerRate: answerRate,
		busyRate:   busyRate,
		rejectRate: rejectRate,
		minRing:    minRing,
		maxRing:    maxRing,
		minTalk:    minTalk,
		maxTalk:    maxTalk,
		bridgeID:   "MOCK_BRIDGE_" + uuid.New().String()[:8],
		feed:       feed,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		active:     make(map[string]context.CancelFunc),
	}
}

func (b *MockBridge) roll() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64()
}

func (b *MockBridge) duration(min, max time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= min {
		return min
	}
	return min + time.Duration(b.rng.Int63n(int64(max-min)))
}

func (b *MockBridge) emit(handle string, eventType gw.CallEventType, errMsg string) {
	_, err := b.feed.PublishJSON(context.Background(), gw.CallEvent{
		Handle:    handle,
		Type:      eventType,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Str("handle", handle).Msg("failed to publish call event")
		return
	}
	log.Info().Str("handle", handle).Str("type", string(eventType)).Msg("call event published")
}

// simulateCall drives one placed call: ring, then answer, busy or
// no-answer; answered calls talk for a while and end. A hangup cancels
// the context and emits ended immediately.
func (b *MockBridge) simulateCall(ctx context.Context, handle string) {
	defer b.drop(handle)

	select {
	case <-ctx.Done():
		b.emit(handle, gw.EventEnded, "")
		return
	case <-time.After(b.duration(b.minRing, b.maxRing)):
	}

	outcome := b.roll()
	switch {
	case outcome < b.busyRate:
		b.emit(handle, gw.EventBusy, "")
		return
	case outcome > b.answerRate+b.busyRate:
		b.emit(handle, gw.EventNoAnswer, "")
		return
	}

	b.emit(handle, gw.EventAnswered, "")

	select {
	case <-ctx.Done():
		b.emit(handle, gw.EventEnded, "")
		return
	case <-time.After(b.duration(b.minTalk, b.maxTalk)):
	}

	b.emit(handle, gw.EventEnded, "")
}

func (b *MockBridge) drop(handle string) {
	b.mu.Lock()
	delete(b.active, handle)
	b.mu.Unlock()
}

type Handler struct {
	bridge *MockBridge
}

func NewHandler(bridge *MockBridge) *Handler {
	return &Handler{bridge: bridge}
}

// PlaceCall accepts one placement and starts the call simulation.
func (h *Handler) PlaceCall(c *gin.Context) {
	var req PlaceCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if h.bridge.roll() < h.bridge.rejectRate {
		c.JSON(http.StatusOK, PlaceCallResponse{
			ErrorCode: "INVALID_NUMBER",
			ErrorMsg:  "The phone number is invalid or not in service",
		})
		return
	}

	handle := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	h.bridge.mu.Lock()
	h.bridge.active[handle] = cancel
	h.bridge.mu.Unlock()

	go h.bridge.simulateCall(ctx, handle)

	log.Info().
		Str("call_id", req.CallID).
		Str("phone", req.PhoneNumber).
		Str("handle", handle).
		Msg("call placed")

	c.JSON(http.StatusOK, PlaceCallResponse{Handle: handle})
}

// Hangup tears down an in-flight call.
func (h *Handler) Hangup(c *gin.Context) {
	handle := c.Param("handle")

	h.bridge.mu.Lock()
	cancel, ok := h.bridge.active[handle]
	h.bridge.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call handle"})
		return
	}

	cancel()
	log.Info().Str("handle", handle).Msg("hangup requested")
	c.JSON(http.StatusOK, gin.H{"status": "hangup"})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.bridge.mu.Lock()
	active := len(h.bridge.active)
	h.bridge.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"bridge_id":    h.bridge.bridgeID,
		"active_calls": active,
		"answer_rate":  h.bridge.answerRate,
		"timestamp":    time.Now(),
	})
}

// UpdateConfig allows changing bridge behavior at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AnswerRate *float64 `json:"answer_rate"`
		BusyRate   *float64 `json:"busy_rate"`
		RejectRate *float64 `json:"reject_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.bridge.mu.Lock()
	if config.AnswerRate != nil && *config.AnswerRate >= 0 && *config.AnswerRate <= 1.0 {
		h.bridge.answerRate = *config.AnswerRate
	}
	if config.BusyRate != nil && *config.BusyRate >= 0 && *config.BusyRate <= 1.0 {
		h.bridge.busyRate = *config.BusyRate
	}
	if config.RejectRate != nil && *config.RejectRate >= 0 && *config.RejectRate <= 1.0 {
		h.bridge.rejectRate = *config.RejectRate
	}
	h.bridge.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"answer_rate": h.bridge.answerRate,
		"busy_rate":   h.bridge.busyRate,
		"reject_rate": h.bridge.rejectRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/calls", handler.PlaceCall)
		v1.POST("/calls/:handle/hangup", handler.Hangup)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	redisAddr := getEnv("REDIS_ADDR", "127.0.0.1:6379")
	eventStream := getEnv("EVENT_STREAM", "gateway:events")
	answerRate := getEnvFloat("ANSWER_RATE", 0.8)
	busyRate := getEnvFloat("BUSY_RATE", 0.05)
	rejectRate := getEnvFloat("REJECT_RATE", 0)
	minRing := getEnvDuration("MIN_RING", 1*time.Second)
	maxRing := getEnvDuration("MAX_RING", 5*time.Second)
	minTalk := getEnvDuration("MIN_TALK", 5*time.Second)
	maxTalk := getEnvDuration("MAX_TALK", 20*time.Second)

	log.Info().
		Str("port", port).
		Str("event_stream", eventStream).
		Float64("answer_rate", answerRate).
		Dur("min_ring", minRing).
		Dur("max_ring", maxRing).
		Msg("Starting Mock SIP Bridge")

	adapter, err := redis.NewRedisAdapter("bridge", "", &redis.Options{
		Addrs: []string{redisAddr},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	feed, err := queue.NewStream(adapter, queue.Config{Stream: eventStream})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open event stream")
	}

	bridge := NewMockBridge(feed, answerRate, busyRate, rejectRate, minRing, maxRing, minTalk, maxTalk)
	handler := NewHandler(bridge)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
