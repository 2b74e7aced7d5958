package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(_ context.Context, a *Audio) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return string(a.Data), nil
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	opts   []SpeechOptions
	block  chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts SpeechOptions) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeSynth) Voices() []VoiceInfo {
	return []VoiceInfo{{ID: "alloy", Name: "Alloy", Languages: []string{"en"}, Gender: "neutral"}}
}

func (f *fakeSynth) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type failingCapturer struct{}

func (failingCapturer) Capture(context.Context, time.Duration) (*Audio, error) {
	return nil, errors.New("device unplugged")
}

func waitEvent(t *testing.T, b *Bridge, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-b.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}

func TestStartWithoutCapturer(t *testing.T) {
	b := NewBridge(Options{}, nil)
	defer b.Close()

	assert.False(t, b.Start())
	assert.Equal(t, StateIdle, b.State())
	assert.False(t, b.IsListening())

	assert.True(t, b.Stop())
	assert.False(t, b.IsListening())
	assert.Equal(t, StateIdle, b.State())
}

func TestListenRecognizesSubmittedAudio(t *testing.T) {
	q := NewQueueCapturer(4)
	b := NewBridge(Options{Capturer: q, Recognizer: &fakeRecognizer{}}, nil)
	defer b.Close()

	require.True(t, b.Start())
	assert.True(t, b.IsListening())
	assert.Equal(t, StateListening, b.State())
	assert.True(t, b.Start(), "start is idempotent")

	require.NoError(t, q.Submit(&Audio{Data: []byte("what time is it")}))
	ev := waitEvent(t, b, EventSpeechRecognized)
	assert.Equal(t, "what time is it", ev.Text)

	assert.True(t, b.Stop())
	assert.False(t, b.IsListening())
	assert.Equal(t, StateIdle, b.State())
}

func TestRecognitionErrorKeepsListening(t *testing.T) {
	q := NewQueueCapturer(4)
	b := NewBridge(Options{Capturer: q, Recognizer: &fakeRecognizer{err: errors.New("service down")}}, nil)
	defer b.Close()

	require.True(t, b.Start())
	require.NoError(t, q.Submit(&Audio{Data: []byte("x")}))

	ev := waitEvent(t, b, EventSpeechError)
	assert.Equal(t, "service down", ev.Err)
	assert.True(t, b.IsListening())
}

func TestCaptureFailureStopsListening(t *testing.T) {
	b := NewBridge(Options{Capturer: failingCapturer{}, Recognizer: &fakeRecognizer{}}, nil)
	defer b.Close()

	require.True(t, b.Start())
	waitEvent(t, b, EventListeningStopped)
	assert.Eventually(t, func() bool { return !b.IsListening() }, time.Second, 10*time.Millisecond)
}

func TestSpeakUnavailable(t *testing.T) {
	b := NewBridge(Options{}, nil)
	defer b.Close()

	assert.ErrorIs(t, b.Speak("hello", false), ErrSynthesisUnavailable)
	assert.False(t, b.SynthesisAvailable())
}

func TestSpeakSanitizesText(t *testing.T) {
	synth := &fakeSynth{}
	b := NewBridge(Options{Synthesizer: synth, DefaultVoice: "alloy"}, nil)
	defer b.Close()

	require.NoError(t, b.Speak("**Hello** see [docs](http://x)", false))
	waitEvent(t, b, EventSpeakingFinished)

	assert.Equal(t, []string{"Hello see docs"}, synth.Spoken())
	assert.Equal(t, "alloy", synth.opts[0].Voice)
	assert.Equal(t, float64(150), synth.opts[0].Rate)
}

func TestSpeakEmptyAfterSanitize(t *testing.T) {
	b := NewBridge(Options{Synthesizer: &fakeSynth{}}, nil)
	defer b.Close()

	assert.ErrorIs(t, b.Speak("### ---", false), ErrEmptyText)
	assert.ErrorIs(t, b.Speak("", false), ErrEmptyText)
}

func TestSpeakInterrupt(t *testing.T) {
	synth := &fakeSynth{block: make(chan struct{})}
	b := NewBridge(Options{Synthesizer: synth}, nil)
	defer b.Close()

	require.NoError(t, b.Speak("first", false))
	waitEvent(t, b, EventSpeakingStarted)
	assert.True(t, b.IsSpeaking())
	assert.Equal(t, StateSpeaking, b.State())

	require.NoError(t, b.Speak("second", true))
	waitEvent(t, b, EventSpeakingFinished)

	close(synth.block)
	assert.Eventually(t, func() bool { return !b.IsSpeaking() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, synth.Spoken())
}

func TestStopSpeaking(t *testing.T) {
	synth := &fakeSynth{block: make(chan struct{})}
	b := NewBridge(Options{Synthesizer: synth}, nil)
	defer b.Close()

	assert.False(t, b.StopSpeaking())
	require.NoError(t, b.Speak("long answer", false))
	assert.True(t, b.StopSpeaking())
	assert.Eventually(t, func() bool { return b.State() == StateIdle }, time.Second, 10*time.Millisecond)
}

func TestSettingsMerge(t *testing.T) {
	b := NewBridge(Options{}, nil)
	defer b.Close()

	got := b.UpdateSettings(map[string]any{SettingSpeechRate: 180.0, SettingVoice: "nova"})
	assert.Equal(t, 180.0, got[SettingSpeechRate])
	assert.Equal(t, "nova", got[SettingVoice])
	assert.Equal(t, 0.9, got[SettingSpeechVolume])

	got["speech_rate"] = 1
	assert.Equal(t, 180.0, b.Settings()[SettingSpeechRate])
}

func TestStatusAndVoices(t *testing.T) {
	b := NewBridge(Options{Synthesizer: &fakeSynth{}}, nil)
	defer b.Close()

	st := b.Status()
	assert.True(t, st.TTSAvailable)
	assert.False(t, st.SpeechRecognitionAvailable)
	assert.Equal(t, StateIdle, st.State)
	assert.Len(t, b.Voices(), 1)

	empty := NewBridge(Options{}, nil)
	defer empty.Close()
	assert.Empty(t, empty.Voices())
}

func TestClosedBridgeRefusesWork(t *testing.T) {
	q := NewQueueCapturer(1)
	b := NewBridge(Options{Capturer: q, Recognizer: &fakeRecognizer{}, Synthesizer: &fakeSynth{}}, nil)
	b.Close()

	assert.False(t, b.Start())
	assert.ErrorIs(t, b.Speak("hi", false), ErrSynthesisUnavailable)
	select {
	case <-b.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"**bold** text", "bold text"},
		{"*it* `code`", "it code"},
		{"see [the docs](https://example.com)", "see the docs"},
		{"# Title\n- item one\n- item two", "Title item one item two"},
		{"a  |  b  >  c", "a b c"},
		{"plain sentence.", "plain sentence."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Sanitize(tc.in), tc.in)
	}
}

func TestQueueCapturer(t *testing.T) {
	q := NewQueueCapturer(1)
	require.NoError(t, q.Submit(&Audio{Data: []byte("a")}))
	assert.ErrorIs(t, q.Submit(&Audio{Data: []byte("b")}), ErrQueueFull)

	a, err := q.Capture(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(a.Data))
	assert.False(t, a.CapturedAt.IsZero())

	_, err = q.Capture(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoSpeech)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Capture(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettingsNumberConversions(t *testing.T) {
	s := map[string]any{"a": 2, "b": 1.5, "c": "x"}
	assert.Equal(t, 2*time.Second, seconds(s, "a", 5))
	assert.Equal(t, 1500*time.Millisecond, seconds(s, "b", 5))
	assert.Equal(t, 5*time.Second, seconds(s, "c", 5))
	assert.Equal(t, 5*time.Second, seconds(s, "missing", 5))
}
