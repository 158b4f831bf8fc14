package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pcuzner/runner-wrapper/pkg/artifacts"
	"github.com/pcuzner/runner-wrapper/pkg/channels/kafka"
	"github.com/pcuzner/runner-wrapper/pkg/cmd"
	"github.com/pcuzner/runner-wrapper/pkg/engine"
	"github.com/pcuzner/runner-wrapper/pkg/eventbus"
	"github.com/pcuzner/runner-wrapper/pkg/lifecycle"
	"github.com/pcuzner/runner-wrapper/pkg/log"
	"github.com/pcuzner/runner-wrapper/pkg/otelhelper"
	"github.com/pcuzner/runner-wrapper/pkg/runner"
	"github.com/pcuzner/runner-wrapper/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const serverShutdownTimeout = 5 * time.Second

func runAction(ctx context.Context, command *cli.Command) error {
	s := readSettings(command)

	if err := applyLogConfig(&s, command.IsSet("log-level"), command.IsSet("log-format")); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log.Setup(s.logLevel, s.logFormat)
	logger := log.WithModule("runner-wrapper")

	if s.engine.Ident == "" {
		s.engine.Ident = uuid.NewString()
	}

	if err := s.lifecycle.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing runner wrapper",
		"ident", s.engine.Ident, "playbook", s.engine.Playbook, "private_data_dir", s.engine.PrivateDataDir)

	var engineOpts []engine.Option

	if s.otel {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, otelhelper.ServiceName)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to initialize tracer: %v", err), 1)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	eng := engine.New(s.engine, logger, engineOpts...)
	store := artifacts.NewStore(s.engine.ArtifactDir(), s.keepPartials, logger)

	runnerOpts, closeBus, err := eventForwarding(ctx, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closeBus()

	r := runner.New(eng, store, logger, runnerOpts...)

	shutdown := lifecycle.NewShutdownSignal()
	server := web.NewServer(r, shutdown, logger, web.WithAccessLog(s.accessLog))

	orchestrator := lifecycle.NewOrchestrator(s.lifecycle, r, server, shutdown, logger)

	runErr := orchestrator.Run(ctx)

	if err := server.Shutdown(serverShutdownTimeout); err != nil {
		logger.WarnContext(ctx, "Query server did not stop cleanly", "error", err)
	}

	var exitErr *lifecycle.ExitError
	if errors.As(runErr, &exitErr) {
		return cli.Exit(exitErr.Error(), exitErr.Code)
	}

	return runErr
}

// applyLogConfig fills log settings from the YAML config unless set on the command line.
func applyLogConfig(s *settings, levelSet, formatSet bool) error {
	cfg, err := log.LoadConfig(s.logConfig)
	if err != nil || cfg == nil {
		return err
	}

	if !levelSet && cfg.Level != "" {
		s.logLevel = cfg.Level
	}

	if !formatSet && cfg.Format != "" {
		s.logFormat = cfg.Format
	}

	return nil
}

func eventForwarding(ctx context.Context, s settings, logger *slog.Logger) ([]runner.Option, func(), error) {
	bus, err := cmd.NewEventBus(s.eventBus, kafka.ParseBrokers(s.brokers), s.topic, logger)
	if err != nil {
		return nil, func() {}, err
	}

	if bus == nil {
		return nil, func() {}, nil
	}

	closeBus := func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if s.eventBus == cmd.EventBusGoChannel {
		if err := cmd.LogJobEvents(ctx, bus, logger); err != nil {
			closeBus()

			return nil, func() {}, err
		}
	}

	logger.InfoContext(ctx, "Forwarding job events", "event_bus", s.eventBus, "topic", bus.Topic())

	return []runner.Option{runner.WithPublisher(eventbus.NewJobPublisher(bus, s.engine.Ident))}, closeBus, nil
}
