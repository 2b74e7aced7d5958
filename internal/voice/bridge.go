package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/metrics"
)

// State is the externally visible bridge state. Recognition runs
// concurrently with Listening and is not a state of its own here.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
)

// EventKind names a bridge event.
type EventKind string

const (
	EventListeningStarted EventKind = "listening_started"
	EventListeningStopped EventKind = "listening_stopped"
	EventSpeechRecognized EventKind = "speech_recognized"
	EventSpeechError      EventKind = "speech_error"
	EventSpeakingStarted  EventKind = "speaking_started"
	EventSpeakingFinished EventKind = "speaking_finished"
)

// Event is emitted on the bridge's event channel.
type Event struct {
	Kind EventKind
	Text string
	Err  string
	At   time.Time
}

// Options configures a Bridge.
type Options struct {
	Capturer     Capturer
	Recognizer   Recognizer
	Synthesizer  Synthesizer
	DefaultVoice string
	// EventBuffer bounds the event channel.
	EventBuffer int
	// JoinTimeout bounds how long Stop waits for the listening loop.
	JoinTimeout time.Duration
	// RecognizeTimeout bounds a single recognition task.
	RecognizeTimeout time.Duration
}

// Bridge owns the listen/speak state machine.
type Bridge struct {
	capturer     Capturer
	recognizer   Recognizer
	synthesizer  Synthesizer
	defaultVoice string
	joinTimeout  time.Duration
	recognizeTTL time.Duration
	logger       *logger.Logger

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	settings   map[string]any
	listening  atomic.Bool
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	speaking   map[uint64]context.CancelFunc
	nextSpeech uint64

	tasks sync.WaitGroup
}

// NewBridge creates a bridge. Any capability may be nil.
func NewBridge(opts Options, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 2 * time.Second
	}
	if opts.RecognizeTimeout <= 0 {
		opts.RecognizeTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		capturer:     opts.Capturer,
		recognizer:   opts.Recognizer,
		synthesizer:  opts.Synthesizer,
		defaultVoice: opts.DefaultVoice,
		joinTimeout:  opts.JoinTimeout,
		recognizeTTL: opts.RecognizeTimeout,
		logger:       log.Named("voice"),
		events:       make(chan Event, opts.EventBuffer),
		ctx:          ctx,
		cancel:       cancel,
		settings:     DefaultSettings(),
		speaking:     make(map[uint64]context.CancelFunc),
	}
}

// Events returns the bounded event channel. It is never closed; stop
// reading when Done is closed.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Done is closed by Close.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// RecognitionAvailable reports whether listening can start.
func (b *Bridge) RecognitionAvailable() bool {
	return b.capturer != nil && b.recognizer != nil
}

// SynthesisAvailable reports whether Speak can work.
func (b *Bridge) SynthesisAvailable() bool {
	return b.synthesizer != nil
}

// IsListening reports the listening flag.
func (b *Bridge) IsListening() bool {
	return b.listening.Load()
}

// IsSpeaking reports whether any utterance is playing.
func (b *Bridge) IsSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.speaking) > 0
}

// State returns the current state. Speaking wins over Listening.
func (b *Bridge) State() State {
	switch {
	case b.IsSpeaking():
		return StateSpeaking
	case b.IsListening():
		return StateListening
	default:
		return StateIdle
	}
}

// Start begins listening. It returns false and stays Idle when no capture
// device is available.
func (b *Bridge) Start() bool {
	if !b.RecognitionAvailable() {
		b.logger.Warn("speech recognition not available")
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return false
	}
	if b.listening.Load() {
		return true
	}

	ctx, stop := context.WithCancel(b.ctx)
	done := make(chan struct{})
	b.stopLoop = stop
	b.loopDone = done
	b.listening.Store(true)

	go b.listen(ctx, done)

	b.emit(Event{Kind: EventListeningStarted})
	b.logger.Info("voice listening started")
	return true
}

// Stop flips the listening flag and waits, bounded, for the loop to exit.
// It always returns true.
func (b *Bridge) Stop() bool {
	b.mu.Lock()
	b.listening.Store(false)
	stop, done := b.stopLoop, b.loopDone
	b.stopLoop, b.loopDone = nil, nil
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		t := time.NewTimer(b.joinTimeout)
		select {
		case <-done:
		case <-t.C:
			b.logger.Warn("listening loop did not exit in time", zap.Duration("timeout", b.joinTimeout))
		}
		t.Stop()
	}

	b.emit(Event{Kind: EventListeningStopped})
	b.logger.Info("voice listening stopped")
	return true
}

func (b *Bridge) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	for b.listening.Load() && ctx.Err() == nil {
		audio, err := b.capturer.Capture(ctx, seconds(b.Settings(), SettingRecognitionTimeout, 5))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrNoSpeech) {
				continue
			}
			b.logger.Error("capture failed, stopping listening", zap.Error(err))
			b.emit(Event{Kind: EventSpeechError, Err: err.Error()})
			b.mu.Lock()
			if b.loopDone == done {
				b.listening.Store(false)
				b.stopLoop, b.loopDone = nil, nil
			}
			b.mu.Unlock()
			b.emit(Event{Kind: EventListeningStopped})
			return
		}

		b.tasks.Add(1)
		go b.recognize(audio)
	}
}

func (b *Bridge) recognize(audio *Audio) {
	defer b.tasks.Done()

	ctx, cancel := context.WithTimeout(b.ctx, b.recognizeTTL)
	defer cancel()

	text, err := b.recognizer.Recognize(ctx, audio)
	if err != nil {
		b.logger.Warn("speech recognition error", zap.Error(err))
		b.emit(Event{Kind: EventSpeechError, Err: err.Error()})
		return
	}
	if text == "" {
		return
	}
	b.logger.Info("speech recognized", zap.Int("chars", len(text)))
	b.emitBlocking(Event{Kind: EventSpeechRecognized, Text: text})
}

// Speak sanitises text and plays it on its own task. With interrupt set,
// utterances already playing are cancelled first; otherwise they overlap.
func (b *Bridge) Speak(text string, interrupt bool) error {
	if b.synthesizer == nil {
		return ErrSynthesisUnavailable
	}
	clean := Sanitize(text)
	if clean == "" {
		return ErrEmptyText
	}
	if b.ctx.Err() != nil {
		return ErrSynthesisUnavailable
	}
	if interrupt {
		b.StopSpeaking()
	}

	ctx, cancel := context.WithCancel(b.ctx)
	b.mu.Lock()
	id := b.nextSpeech
	b.nextSpeech++
	b.speaking[id] = cancel
	opts := speechOptions(b.settings, b.defaultVoice)
	b.mu.Unlock()

	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		defer func() {
			b.mu.Lock()
			delete(b.speaking, id)
			b.mu.Unlock()
			cancel()
			b.emit(Event{Kind: EventSpeakingFinished})
		}()

		b.emit(Event{Kind: EventSpeakingStarted, Text: text})
		if err := b.synthesizer.Synthesize(ctx, clean, opts); err != nil && ctx.Err() == nil {
			b.logger.Error("text-to-speech failed", zap.Error(err))
			b.emit(Event{Kind: EventSpeechError, Err: err.Error()})
		}
	}()
	return nil
}

// StopSpeaking cancels every utterance currently playing. It reports
// whether anything was playing.
func (b *Bridge) StopSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.speaking) == 0 {
		return false
	}
	for id, cancel := range b.speaking {
		cancel()
		delete(b.speaking, id)
	}
	b.logger.Info("speech stopped")
	return true
}

// Settings returns a copy of the current settings.
func (b *Bridge) Settings() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copySettings(b.settings)
}

// UpdateSettings merges update into the settings and returns the result.
func (b *Bridge) UpdateSettings(update map[string]any) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range update {
		b.settings[k] = v
	}
	b.logger.Info("voice settings updated", zap.Int("keys", len(update)))
	return copySettings(b.settings)
}

// Voices lists synthesis voices when the synthesizer exposes them.
func (b *Bridge) Voices() []VoiceInfo {
	if l, ok := b.synthesizer.(VoiceLister); ok {
		return l.Voices()
	}
	return []VoiceInfo{}
}

// Status is a point-in-time snapshot of the bridge.
type Status struct {
	TTSAvailable               bool           `json:"tts_available"`
	SpeechRecognitionAvailable bool           `json:"speech_recognition_available"`
	IsListening                bool           `json:"is_listening"`
	IsSpeaking                 bool           `json:"is_speaking"`
	State                      State          `json:"state"`
	Settings                   map[string]any `json:"settings"`
	Timestamp                  time.Time      `json:"timestamp"`
}

// Status returns a snapshot.
func (b *Bridge) Status() Status {
	return Status{
		TTSAvailable:               b.SynthesisAvailable(),
		SpeechRecognitionAvailable: b.RecognitionAvailable(),
		IsListening:                b.IsListening(),
		IsSpeaking:                 b.IsSpeaking(),
		State:                      b.State(),
		Settings:                   b.Settings(),
		Timestamp:                  time.Now().UTC(),
	}
}

// Close stops listening and speaking and waits, bounded, for spawned tasks.
func (b *Bridge) Close() {
	b.Stop()
	b.StopSpeaking()
	b.cancel()

	waited := make(chan struct{})
	go func() {
		b.tasks.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(b.joinTimeout):
		b.logger.Warn("voice tasks still running at close")
	}
}

// emit drops the event when the channel is full. Status events are
// advisory; the next one supersedes it.
func (b *Bridge) emit(ev Event) {
	ev.At = time.Now().UTC()
	metrics.VoiceEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("voice event dropped", zap.String("kind", string(ev.Kind)))
	}
}

// emitBlocking applies backpressure to recognition tasks so utterances
// are not lost while the consumer catches up.
func (b *Bridge) emitBlocking(ev Event) {
	ev.At = time.Now().UTC()
	metrics.VoiceEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	select {
	case b.events <- ev:
	case <-b.ctx.Done():
	}
}
