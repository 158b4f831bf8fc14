// Package tracker follows the job's lifecycle markers and answers which task is active.
package tracker

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

const (
	// Started is pushed when a play begins.
	Started = "<STARTED>"

	// Ended is pushed when the play recap is printed.
	Ended = "<ENDED>"
)

const (
	taskPrefix  = "\r\nTASK"
	recapPrefix = "\r\nPLAY RECAP"
	playPrefix  = "\r\nPLAY "
)

var (
	// ErrNotReady is returned by Current before any marker has been observed.
	ErrNotReady = errors.New("no task has started yet")

	// ErrMalformedMarker is returned when a task banner carries no bracketed label.
	ErrMalformedMarker = errors.New("task marker without a bracketed label")
)

var taskLabel = regexp.MustCompile(`\[(.*)\]`)

// Marker classifies an stdout line.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerTask
	MarkerPlay
	MarkerRecap
)

// Tracker keeps the append-only stack of lifecycle markers. Observe is called by the job
// thread; Current and Entries may be called concurrently from request handlers.
type Tracker struct {
	mu      sync.RWMutex
	entries []string
}

func New() *Tracker {
	return &Tracker{}
}

// Observe classifies stdout and pushes the matching entry. It returns the marker kind seen.
func (t *Tracker) Observe(stdout string) (Marker, error) {
	switch {
	case strings.HasPrefix(stdout, taskPrefix):
		match := taskLabel.FindStringSubmatch(stdout)
		if match == nil || match[1] == "" {
			return MarkerTask, ErrMalformedMarker
		}

		t.push(match[1])

		return MarkerTask, nil
	case strings.HasPrefix(stdout, recapPrefix):
		t.push(Ended)

		return MarkerRecap, nil
	case strings.HasPrefix(stdout, playPrefix):
		t.push(Started)

		return MarkerPlay, nil
	default:
		return MarkerNone, nil
	}
}

func (t *Tracker) push(entry string) {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
}

// Current returns the most recently pushed entry.
func (t *Tracker) Current() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return "", ErrNotReady
	}

	return t.entries[len(t.entries)-1], nil
}

// Entries returns a copy of every entry pushed so far.
func (t *Tracker) Entries() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.entries))
	copy(out, t.entries)

	return out
}
