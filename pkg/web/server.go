package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/pcuzner/runner-wrapper/pkg/lifecycle"
)

type Server struct {
	app    *fiber.App
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

type ServerOption func(*serverOptions)

type serverOptions struct {
	accessLog bool
}

// WithAccessLog enables per-request logging.
func WithAccessLog(enabled bool) ServerOption {
	return func(o *serverOptions) {
		o.accessLog = enabled
	}
}

func NewServer(job JobView, shutdown *lifecycle.ShutdownSignal, log *slog.Logger, opts ...ServerOption) *Server {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	log = log.With("module", "web")
	handlers := NewAPIHandlers(job, shutdown, validator.New(validator.WithRequiredStructEnabled()), log)

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
	})
	app.Use(cors.New())

	if options.accessLog {
		app.Use(logger.New(logger.Config{
			DisableColors: true,
		}))
	}

	app.Get("/getActiveTask", handlers.GetActiveTask)
	app.Get("/getTasks", handlers.GetTasks)
	app.Get("/getStatus", handlers.GetStatus)
	app.Get("/getTaskInfo", handlers.GetTaskInfo)
	app.Post("/shutdown", handlers.Shutdown)

	app.Use(handlers.Undefined)

	return &Server{app: app, logger: log}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves on addr until Shutdown is called. It returns nil right away when Shutdown
// already ran.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	ln, err := net.Listen(fiber.NetworkTCP4, addr)
	if err != nil {
		s.mu.Unlock()

		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.mu.Unlock()

	err = s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Shutdown stops the listener, waiting at most timeout for open requests. It is safe to call
// before or while Start is setting up the listener.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	err := s.app.ShutdownWithTimeout(timeout)

	// The listener may not be registered with the HTTP server yet.
	if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}

	return err
}
