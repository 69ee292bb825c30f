package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/voice-broadcast/internal/config"
	"github.com/nimasrn/voice-broadcast/internal/directory"
	"github.com/nimasrn/voice-broadcast/internal/dispatcher"
	"github.com/nimasrn/voice-broadcast/internal/events"
	gateway "github.com/nimasrn/voice-broadcast/internal/gateways"
	"github.com/nimasrn/voice-broadcast/internal/handlers"
	"github.com/nimasrn/voice-broadcast/internal/model"
	"github.com/nimasrn/voice-broadcast/internal/queue"
	"github.com/nimasrn/voice-broadcast/internal/repository"
	"github.com/nimasrn/voice-broadcast/internal/services"
	xhttp "github.com/nimasrn/voice-broadcast/pkg/http"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
	"github.com/nimasrn/voice-broadcast/pkg/prom"
	"github.com/nimasrn/voice-broadcast/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if config.Get().AppDebugMetricsAddr != "" {
		go func() {
			prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}()
	}

	// the stream the SIP bridge reports call progress on
	feed, err := queue.NewStream(redisAdap, queue.Config{
		Stream:   config.Get().GatewayEventStream,
		Group:    config.Get().GatewayConsumerGroup,
		Consumer: hostname,
	})
	if err != nil {
		logger.Error("failed creating gateway event feed", "error", err)
		return
	}

	sipGateway, err := gateway.NewSIPGateway(gateway.SIPGatewayConfig{
		BaseURL:        config.Get().GatewayBaseUrl,
		RequestTimeout: config.Get().GatewayRequestTimeout,
	}, feed)
	if err != nil {
		logger.Error("failed to create SIP gateway", "error", err)
		return
	}

	publisher := events.NewPublisher(redisAdap, config.Get().EventChannel, config.Get().EventBufferSize)

	broadcastRepo := repository.NewBroadcastRepository(db)
	callRepo := repository.NewCallRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)

	resolver := directory.NewResolver(employeeRepo)

	disp, err := dispatcher.NewDispatcher(broadcastRepo, callRepo, resolver, sipGateway, publisher, model.DispatchConfig{
		MaxConcurrentCalls: config.Get().DispatchMaxConcurrentCalls,
		CallTimeoutSeconds: config.Get().DispatchCallTimeoutSeconds,
		RetryFailedCalls:   config.Get().DispatchRetryFailedCalls,
		MaxRetries:         config.Get().DispatchMaxRetries,
	})
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		return
	}

	// services
	broadcastService := services.NewBroadcastService(broadcastRepo, callRepo, disp)
	healthService := services.NewHealthService(db, redisAdap)

	scheduler := services.NewScheduler(broadcastRepo, disp, config.Get().SchedulerPollInterval)
	scheduler.Start()

	// v1 handlers
	broadcastHandler := handlers.NewBroadcastHandler(broadcastService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterBroadcastRoutes(g, broadcastHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		scheduler.Stop()
		if err := feed.Stop(5 * time.Second); err != nil {
			logger.Error("failed to stop gateway event feed", "error", err)
		}
		publisher.Close()
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
