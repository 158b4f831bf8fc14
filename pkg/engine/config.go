package engine

import (
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

const DefaultTaskTimeout = 5 * time.Minute

// Config locates the playbook using the ansible-runner private data directory layout.
type Config struct {
	PrivateDataDir string        `validate:"required"`
	Playbook       string        `validate:"required"`
	Ident          string        `validate:"required"`
	TaskTimeout    time.Duration `validate:"gt=0"`
}

func (c Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func (c Config) ProjectDir() string {
	return filepath.Join(c.PrivateDataDir, "project")
}

func (c Config) PlaybookPath() string {
	return filepath.Join(c.ProjectDir(), c.Playbook)
}

// ArtifactDir is where the job's event records and result files are written.
func (c Config) ArtifactDir() string {
	return filepath.Join(c.PrivateDataDir, "artifacts", c.Ident)
}
