// Package openaivoice implements the voice capabilities on the OpenAI
// audio endpoints.
package openaivoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zyeon-ai/realtime-gateway/internal/voice"
)

// Recognizer transcribes audio with Whisper.
type Recognizer struct {
	client   *openai.Client
	language string
}

// NewRecognizer creates a recognizer. language may be empty for auto-detect.
func NewRecognizer(client *openai.Client, language string) *Recognizer {
	return &Recognizer{client: client, language: language}
}

// Recognize implements voice.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, audio *voice.Audio) (string, error) {
	if audio == nil || len(audio.Data) == 0 {
		return "", voice.ErrNoSpeech
	}
	format := audio.Format
	if format == "" {
		format = "wav"
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "utterance." + format,
		Reader:   bytes.NewReader(audio.Data),
		Format:   openai.AudioResponseFormatJSON,
		Language: r.language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Sink receives synthesized audio. It returns once the audio has been
// handed off or played.
type Sink func(ctx context.Context, audio []byte, format string) error

// Synthesizer generates speech with the OpenAI TTS endpoint.
type Synthesizer struct {
	client *openai.Client
	sink   Sink
}

// NewSynthesizer creates a synthesizer. A nil sink discards the audio.
func NewSynthesizer(client *openai.Client, sink Sink) *Synthesizer {
	return &Synthesizer{client: client, sink: sink}
}

// Synthesize implements voice.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts voice.SpeechOptions) error {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voiceFor(opts.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          Speed(opts.Rate),
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return fmt.Errorf("failed to read speech audio: %w", err)
	}
	if s.sink == nil {
		return nil
	}
	return s.sink(ctx, data, string(openai.SpeechResponseFormatMp3))
}

var voices = []voice.VoiceInfo{
	{ID: string(openai.VoiceAlloy), Name: "Alloy", Languages: []string{"en"}, Gender: "neutral"},
	{ID: string(openai.VoiceEcho), Name: "Echo", Languages: []string{"en"}, Gender: "male"},
	{ID: string(openai.VoiceFable), Name: "Fable", Languages: []string{"en"}, Gender: "neutral"},
	{ID: string(openai.VoiceOnyx), Name: "Onyx", Languages: []string{"en"}, Gender: "male"},
	{ID: string(openai.VoiceNova), Name: "Nova", Languages: []string{"en"}, Gender: "female"},
	{ID: string(openai.VoiceShimmer), Name: "Shimmer", Languages: []string{"en"}, Gender: "female"},
}

// Voices implements voice.VoiceLister.
func (s *Synthesizer) Voices() []voice.VoiceInfo {
	out := make([]voice.VoiceInfo, len(voices))
	copy(out, voices)
	return out
}

func voiceFor(id string) openai.SpeechVoice {
	for _, v := range voices {
		if v.ID == id {
			return openai.SpeechVoice(id)
		}
	}
	return openai.VoiceAlloy
}

// Speed maps a words-per-minute rate onto the endpoint's 0.25-4.0 speed
// multiplier, taking 150 wpm as 1.0.
func Speed(wpm float64) float64 {
	if wpm <= 0 {
		return 1.0
	}
	speed := wpm / 150
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4.0 {
		return 4.0
	}
	return speed
}

// DrainSink returns a sink that holds the call for the approximate playback
// duration of the audio so speaking state tracks real time.
func DrainSink(bytesPerSecond int, deliver Sink) Sink {
	return func(ctx context.Context, audio []byte, format string) error {
		if deliver != nil {
			if err := deliver(ctx, audio, format); err != nil {
				return err
			}
		}
		if bytesPerSecond <= 0 {
			return nil
		}
		d := time.Duration(float64(len(audio)) / float64(bytesPerSecond) * float64(time.Second))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
