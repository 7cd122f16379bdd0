// Package segment turns a stream of raw audio frames into transcript segments.
package segment

import "fmt"

// State is the accumulation state of a speech Buffer.
type State int

const (
	// StateIdle - nothing buffered, waiting for the first loud frame.
	StateIdle State = iota
	// StateAccumulating - speech in progress, frames are appended.
	StateAccumulating
	// StateTrailingSilence - speech paused; frames are still appended
	// inside the grace window while the pause is measured.
	StateTrailingSilence
	// StateFlushing - buffered audio was handed to the transcriber and
	// the result is not back yet.
	StateFlushing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateTrailingSilence:
		return "TRAILING_SILENCE"
	case StateFlushing:
		return "FLUSHING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// HasSpeech returns true if the state implies buffered speech.
func (s State) HasSpeech() bool {
	return s == StateAccumulating || s == StateTrailingSilence
}

// Flush triggers, used for metrics and logs.
const (
	TriggerSilence     = "silence"
	TriggerMaxDuration = "max_duration"
	TriggerGrace       = "grace_exhausted"
)
