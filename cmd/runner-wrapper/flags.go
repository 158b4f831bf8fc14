package main

import (
	"time"

	"github.com/pcuzner/runner-wrapper/pkg/cmd"
	"github.com/pcuzner/runner-wrapper/pkg/engine"
	"github.com/pcuzner/runner-wrapper/pkg/events"
	"github.com/pcuzner/runner-wrapper/pkg/lifecycle"
	cli "github.com/urfave/cli/v3"
)

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to serve the query API on",
			Value:   lifecycle.DefaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Address to bind the query API to",
			Value:   "0.0.0.0",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.StringFlag{
			Name:    "private-data-dir",
			Usage:   "Runner private data directory (project/ and artifacts/ live here)",
			Value:   "./ansible",
			Sources: cli.EnvVars("PRIVATE_DATA_DIR"),
		},
		&cli.StringFlag{
			Name:    "playbook",
			Usage:   "Playbook file name inside <private-data-dir>/project",
			Value:   "test.yml",
			Sources: cli.EnvVars("PLAYBOOK"),
		},
		&cli.StringFlag{
			Name:    "ident",
			Usage:   "Job identifier, used as the artifact directory name (default: random uuid)",
			Sources: cli.EnvVars("RUNNER_IDENT"),
		},
		&cli.BoolFlag{
			Name:    "keep-partials",
			Usage:   "Keep partial event records after the full record is written",
			Sources: cli.EnvVars("KEEP_PARTIALS"),
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "How long to wait for a /shutdown request after the job finishes",
			Value:   lifecycle.DefaultShutdownTimeout,
			Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Interval for polling the job while it runs",
			Value: lifecycle.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:  "task-timeout",
			Usage: "Default timeout of shell and command tasks",
			Value: engine.DefaultTaskTimeout,
		},
		&cli.BoolFlag{
			Name:    "access-log",
			Usage:   "Log every HTTP request",
			Sources: cli.EnvVars("ACCESS_LOG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "log-config",
			Usage:   "Optional YAML logging config; flags set explicitly take precedence",
			Value:   "logging.yaml",
			Sources: cli.EnvVars("LOG_CFG"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Forward job events to an event bus (none, gochannel, kafka)",
			Value:   cmd.EventBusNone,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "event-topic",
			Usage:   "Topic job events are published on",
			Value:   events.DefaultTopic,
			Sources: cli.EnvVars("EVENT_TOPIC"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP (configured with the OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// settings is the resolved command line.
type settings struct {
	lifecycle    lifecycle.Config
	engine       engine.Config
	keepPartials bool
	accessLog    bool
	logLevel     string
	logFormat    string
	logConfig    string
	eventBus     string
	brokers      string
	topic        string
	otel         bool
}

type flagReader interface {
	Int(name string) int
	String(name string) string
	Bool(name string) bool
	Duration(name string) time.Duration
}

func readSettings(c flagReader) settings {
	return settings{
		lifecycle: lifecycle.Config{
			Host:            c.String("host"),
			Port:            c.Int("port"),
			ShutdownTimeout: c.Duration("shutdown-timeout"),
			PollInterval:    c.Duration("poll-interval"),
		},
		engine: engine.Config{
			PrivateDataDir: c.String("private-data-dir"),
			Playbook:       c.String("playbook"),
			Ident:          c.String("ident"),
			TaskTimeout:    c.Duration("task-timeout"),
		},
		keepPartials: c.Bool("keep-partials"),
		accessLog:    c.Bool("access-log"),
		logLevel:     c.String("log-level"),
		logFormat:    c.String("log-format"),
		logConfig:    c.String("log-config"),
		eventBus:     c.String("event-bus"),
		brokers:      c.String("kafka-brokers"),
		topic:        c.String("event-topic"),
		otel:         c.Bool("otel"),
	}
}
