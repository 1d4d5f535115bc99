package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/signaling-coordinator/modules/api"
	"github.com/example/signaling-coordinator/modules/broadcast"
	"github.com/example/signaling-coordinator/modules/coordinator"
	"github.com/example/signaling-coordinator/modules/telemetry"
	"github.com/example/signaling-coordinator/modules/wsserver"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Signaling Coordinator - Presence, Channels & Negotiation Relay ===")

	cfg := loadConfig()

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	broadcastModule := broadcast.NewModule(cfg.SendQueueSize, logger.WithModule("broadcast"))
	coordinatorModule, err := coordinator.NewModule(cfg.Coordinator, broadcastModule.Hub(), logger.WithModule("coordinator"))
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}
	telemetryModule := telemetry.NewModule(cfg.StatsLogInterval, logger.WithModule("telemetry"))
	apiModule := api.NewModule(cfg.APIPort, logger.WithModule("api"))
	wsModule := wsserver.NewModule(wsserver.Config{
		Addr:           cfg.WSAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		Rate:           cfg.RateLimit,
	}, coordinatorModule.Engine(), broadcastModule.Hub(), logger.WithModule("ws-server"))

	// The hub and the metrics registry are not exposed via ServiceContainer
	apiModule.SetHub(broadcastModule.Hub())
	apiModule.SetMetricsHandler(telemetryModule.Metrics().Handler())

	// Register modules with the framework.
	// Stop runs in reverse order, so the listener closes first and the hub
	// notifies clients last.
	// - broadcast: per-connection send queues
	// - coordinator: engine, request-reply services, event emitter
	// - telemetry: event consumer + periodic stats (depends on coordinator)
	// - api: read-only REST + /metrics (depends on coordinator)
	// - ws-server: websocket listener driving the engine
	app.Register(broadcastModule)
	app.Register(coordinatorModule)
	app.Register(telemetryModule)
	app.Register(apiModule)
	app.Register(wsModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg Config) {
	engine := cfg.Coordinator

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("Default channels: %s", strings.Join(engine.DefaultChannels, ", "))
	log.Printf("Sweep every %s: idle channels after %s, messages after %s, negotiations after %s",
		engine.SweepInterval, engine.ChannelIdleTTL, engine.MessageRetention, engine.NegotiationTTL)
	log.Printf("Private messages: %d per conversation, %d conversations",
		engine.MaxConversationMessages, engine.MaxConversations)
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost%s/ws):", cfg.WSAddr)
	log.Println("  Client types: register, create-channel, join-channel, leave-channel,")
	log.Println("                offer, answer, ice-candidate, channel-message, emergency-message,")
	log.Println("                private-message, typing-start, typing-stop, get-private-messages,")
	log.Println("                get-participants, get-channels, get-stats, ping")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.APIPort)
	log.Println("  GET    /health                              - Health check")
	log.Println("  GET    /metrics                             - Prometheus metrics")
	log.Println("  GET    /api/v1/participants                 - Participant snapshot")
	log.Println("  GET    /api/v1/channels                     - Channel snapshot")
	log.Println("  GET    /api/v1/channels/:id/members         - Channel members")
	log.Println("  GET    /api/v1/stats                        - Coordinator statistics")
	log.Println("  GET    /api/v1/private-messages/:a/:b       - Private history")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
