package wsserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/signaling-coordinator/modules/broadcast"
)

// Config configures the websocket listener.
type Config struct {
	Addr           string
	AllowedOrigins string
	Rate           RateConfig
}

// Module implements the WebSocket server module using Fiber framework.
type Module struct {
	app         *fiber.App
	handlers    *Handlers
	cfg         Config
	coordinator Coordinator
	hub         *broadcast.Hub
	logger      types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new WebSocket server module.
func NewModule(cfg Config, c Coordinator, hub *broadcast.Hub, moduleLogger types.Logger) *Module {
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	if cfg.Rate.PerSecond <= 0 {
		cfg.Rate.PerSecond = 20
	}
	if cfg.Rate.Burst <= 0 {
		cfg.Rate.Burst = 40
	}
	return &Module{
		cfg:         cfg,
		coordinator: c,
		hub:         hub,
		logger:      moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ws-server"
}

// Start initializes and starts the WebSocket server.
func (m *Module) Start(_ context.Context) error {
	m.app = m.newApp()

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("WebSocket server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("WebSocket server started", "addr", m.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the WebSocket server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("WebSocket server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr":        m.cfg.Addr,
			"connections": m.hub.ClientCount(),
		},
	}
}

func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Signaling Coordinator",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	m.handlers = NewHandlers(m.coordinator, m.hub, m.cfg.Rate, m.logger)
	m.registerRoutes(app)
	return app
}

// registerRoutes sets up all HTTP and WebSocket routes.
func (m *Module) registerRoutes(app *fiber.App) {
	app.Get("/health", m.handlers.HealthCheck)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
