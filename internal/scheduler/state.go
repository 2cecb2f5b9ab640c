package scheduler

import (
	"fmt"
	"strings"
)

// State is a step of the scheduler loop.
type State int

const (
	Idle State = iota
	Resolving
	Fetching
	Publishing
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Fetching:
		return "fetching"
	case Publishing:
		return "publishing"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode selects how many cycles Run performs.
type Mode int

const (
	// Continuous publishes on every interval boundary until shutdown.
	Continuous Mode = iota
	// Test publishes once and stops.
	Test
	// Preview resolves and reports the stream mapping without fetching or publishing.
	Preview
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	case Test:
		return "test"
	case Preview:
		return "preview"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous", "":
		return Continuous, nil
	case "test":
		return Test, nil
	case "preview":
		return Preview, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}
