package artifacts

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUUID indicates an event uuid that cannot be used to build an artifact file name.
	ErrInvalidUUID = errors.New("invalid event uuid")

	// ErrCorruptPartial indicates a partial artifact whose content is not a JSON object.
	ErrCorruptPartial = errors.New("corrupt partial artifact")
)

// ArtifactError wraps a failed artifact operation with the event and file it concerned.
type ArtifactError struct {
	Op   string // read, write, remove, validate
	UUID string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s artifact for event %s: %v", e.Op, e.UUID, e.Err)
	}

	return fmt.Sprintf("%s artifact %s for event %s: %v", e.Op, e.Path, e.UUID, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// IsCorruptPartial checks if an error was caused by an unreadable partial artifact.
func IsCorruptPartial(err error) bool {
	return errors.Is(err, ErrCorruptPartial)
}
