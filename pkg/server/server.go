// Package server runs the local HTTP facade over the bridge.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/api"
	"github.com/Egham-7/substreams-bridge/internal/bridge"
	"github.com/Egham-7/substreams-bridge/internal/config"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Server is a bridge HTTP facade instance
type Server struct {
	config *config.Config
	app    *fiber.App
	bridge *bridge.Bridge
}

// New creates a server. cfg must not be nil.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.Load() or config.Default()")
	}
	return &Server{config: cfg}
}

// NewApp builds the fiber app with middleware and routes mounted
func NewApp(cfg *config.Config, caller api.Caller, checks map[string]api.Check) *fiber.App {
	app := createFiberApp(cfg)
	setupMiddleware(app, cfg)
	api.Register(app, caller, checks)
	app.Get("/", welcomeHandler())
	return app
}

// Run starts the server and blocks until shutdown
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	config.SetupLogLevel(s.config)

	b, err := bridge.NewFromConfig(s.config)
	if err != nil {
		return err
	}
	s.bridge = b
	defer func() {
		if err := s.bridge.Close(); err != nil {
			fiberlog.Errorf("Failed to close bridge: %v", err)
		}
	}()

	checks := make(map[string]api.Check)
	for name, check := range b.Checks() {
		checks[name] = check
	}
	s.app = NewApp(s.config, b, checks)

	listenAddr := s.config.Server.ListenAddr()

	fmt.Printf("substreams-bridge starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- s.app.ShutdownWithTimeout(30 * time.Second)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "substreams-bridge v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		// streams run until their range ends
		WriteTimeout:  0,
		IdleTimeout:   5 * time.Minute,
		CaseSensitive: true,
		Network:       "tcp",
		ServerHeader:  "substreams-bridge",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(requestid.New())

	app.Use(limiter.New(limiter.Config{
		Max:               600,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "600 requests per minute"})
		},
	}))

	// Optional per-request deadline
	app.Use(func(c *fiber.Ctx) error {
		raw := c.Get("X-Request-Timeout")
		if raw == "" {
			return c.Next()
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
		app.Use(pprof.New())
	}
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "substreams-bridge",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"rpc":    "/v1/rpc",
				"api":    "/v1/api",
				"stream": "/v1/stream",
				"health": "/health",
			},
		})
	}
}
