// Package artifacts persists job events as per-event JSON files, merging the partial and full
// observations of each event into one durable record.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pcuzner/runner-wrapper/pkg/models"
)

const (
	// EventsDirName is the directory holding event artifacts inside a job's artifact directory.
	EventsDirName = "job_events"

	partialSuffix = "-partial.json"
)

// Store writes event artifacts under <root>/job_events. Record is called from the single
// job thread, so the store itself holds no locks.
//
// Partial observations are also held in memory until their full observation arrives; the
// partial file on disk is only read back when no in-memory entry exists.
type Store struct {
	root         string
	eventsDir    string
	keepPartials bool
	pending      map[string]models.Event
	logger       *slog.Logger
}

// NewStore creates a store rooted at a job's artifact directory.
func NewStore(root string, keepPartials bool, logger *slog.Logger) *Store {
	return &Store{
		root:         root,
		eventsDir:    filepath.Join(root, EventsDirName),
		keepPartials: keepPartials,
		pending:      make(map[string]models.Event),
		logger:       logger.With("module", "artifacts"),
	}
}

// Root returns the job artifact directory.
func (s *Store) Root() string {
	return s.root
}

// EventsDir returns the directory holding event artifacts.
func (s *Store) EventsDir() string {
	return s.eventsDir
}

// PartialPath returns the transient artifact path of an event.
func (s *Store) PartialPath(uuid string) string {
	return filepath.Join(s.eventsDir, uuid+partialSuffix)
}

// FullPath returns the durable artifact path of an event.
func (s *Store) FullPath(counter int64, uuid string) string {
	return filepath.Join(s.eventsDir, strconv.FormatInt(counter, 10)+"-"+uuid+".json")
}

// Record persists one observation of an event and returns the event as it is best known
// afterwards: for a full observation this is the union of the partial record and the incoming
// fields. Failures are logged and never returned; ingestion must keep going.
func (s *Store) Record(ctx context.Context, event models.Event) models.Event {
	uuid := event.UUID()
	if uuid == "" {
		return event
	}

	if err := validateUUID(uuid); err != nil {
		s.logger.WarnContext(ctx, "Skipping event artifact", "error", &ArtifactError{Op: "validate", UUID: uuid, Err: err})

		return event
	}

	if !event.IsFull() {
		return s.recordPartial(ctx, event)
	}

	return s.recordFull(ctx, event)
}

func (s *Store) recordPartial(ctx context.Context, event models.Event) models.Event {
	uuid := event.UUID()
	path := s.PartialPath(uuid)

	if existing, ok := s.pending[uuid]; ok {
		event = event.Merge(existing)
	} else {
		existing, err := s.readPartial(path, uuid)
		switch {
		case err == nil:
			event = event.Merge(existing)
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.logger.WarnContext(ctx, "Overwriting unreadable partial event artifact", "error", err)
		}
	}

	s.pending[uuid] = event

	if err := writeJSONAtomic(path, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed writing partial event data",
			"error", &ArtifactError{Op: "write", UUID: event.UUID(), Path: path, Err: err})
	}

	return event
}

func (s *Store) recordFull(ctx context.Context, event models.Event) models.Event {
	uuid := event.UUID()
	counter, _ := event.Counter()
	partialPath := s.PartialPath(uuid)

	merged := event
	removePartial := false

	if partial, ok := s.pending[uuid]; ok {
		delete(s.pending, uuid)

		merged = event.Merge(partial)
		removePartial = !s.keepPartials
	} else {
		partial, err := s.readPartial(partialPath, uuid)
		switch {
		case err == nil:
			merged = event.Merge(partial)
			removePartial = !s.keepPartials
		case errors.Is(err, fs.ErrNotExist):
			s.logger.DebugContext(ctx, "No partial artifact for event", "uuid", uuid)
		default:
			s.logger.ErrorContext(ctx, "Failed reading partial event data, persisting incoming fields only", "error", err)
		}
	}

	fullPath := s.FullPath(counter, uuid)
	if err := writeJSONAtomic(fullPath, merged); err != nil {
		s.logger.ErrorContext(ctx, "Failed writing event data",
			"error", &ArtifactError{Op: "write", UUID: uuid, Path: fullPath, Err: err})

		return merged
	}

	if removePartial {
		if err := os.Remove(partialPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "Failed removing partial event data",
				"error", &ArtifactError{Op: "remove", UUID: uuid, Path: partialPath, Err: err})
		}
	}

	return merged
}

func (s *Store) readPartial(path, uuid string) (models.Event, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- uuid is validated before the path is built
	if err != nil {
		return nil, &ArtifactError{Op: "read", UUID: uuid, Path: path, Err: err}
	}

	var partial models.Event
	if err := json.Unmarshal(data, &partial); err != nil || partial == nil {
		return nil, &ArtifactError{Op: "read", UUID: uuid, Path: path, Err: fmt.Errorf("%w: %v", ErrCorruptPartial, err)}
	}

	return partial, nil
}

// WriteJobResult records the final job status and return code next to the event artifacts.
func (s *Store) WriteJobResult(status models.JobStatus, rc int) error {
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.root, "status"), []byte(status), 0600); err != nil {
		return fmt.Errorf("failed to write job status: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.root, "rc"), []byte(strconv.Itoa(rc)), 0600); err != nil {
		return fmt.Errorf("failed to write job return code: %w", err)
	}

	return nil
}

func validateUUID(uuid string) error {
	if strings.Contains(uuid, "..") || strings.ContainsAny(uuid, `/\`) {
		return ErrInvalidUUID
	}

	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create events directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
