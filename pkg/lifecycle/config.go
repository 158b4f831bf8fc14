package lifecycle

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPort            = 8080
	DefaultShutdownTimeout = 300 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond

	// ExitLaunchFailed is the process exit code when the job cannot be started.
	ExitLaunchFailed = 8
)

// Config holds the orchestrator settings resolved from the command line.
type Config struct {
	Host            string        `validate:"omitempty,ip|hostname"`
	Port            int           `validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	PollInterval    time.Duration `validate:"gt=0"`
}

// Addr returns the listen address of the query server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}
