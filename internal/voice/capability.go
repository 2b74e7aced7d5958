// Package voice bridges speech capture, recognition and synthesis
// capabilities to text events.
package voice

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSpeech is returned by a Capturer when no phrase started before the timeout.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrRecognitionUnavailable is returned when no capture device or recognizer exists.
	ErrRecognitionUnavailable = errors.New("voice recognition not available")
	// ErrSynthesisUnavailable is returned when no synthesizer exists.
	ErrSynthesisUnavailable = errors.New("text-to-speech not available")
	// ErrEmptyText is returned when there is nothing left to speak.
	ErrEmptyText = errors.New("text is required")
	// ErrQueueFull is returned when submitted audio cannot be buffered.
	ErrQueueFull = errors.New("audio queue full")
)

// Audio is one captured utterance.
type Audio struct {
	Data       []byte
	Format     string
	CapturedAt time.Time
}

// Capturer blocks until a phrase is captured, the timeout elapses with no
// speech (ErrNoSpeech) or ctx is done.
type Capturer interface {
	Capture(ctx context.Context, timeout time.Duration) (*Audio, error)
}

// Recognizer converts captured audio to text.
type Recognizer interface {
	Recognize(ctx context.Context, audio *Audio) (string, error)
}

// SpeechOptions tunes synthesis.
type SpeechOptions struct {
	Voice  string
	Rate   float64
	Volume float64
}

// Synthesizer speaks text and returns when playback completes or ctx is
// cancelled.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SpeechOptions) error
}

// VoiceInfo describes a selectable synthesis voice.
type VoiceInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Gender    string   `json:"gender"`
}

// VoiceLister is implemented by synthesizers that expose their voices.
type VoiceLister interface {
	Voices() []VoiceInfo
}
