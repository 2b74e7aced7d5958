package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
)

// Voice exposes the bridge, which may be nil.
func (o *Orchestrator) Voice() *voice.Bridge {
	return o.voice
}

// StartVoice begins listening and attributes recognized utterances to id.
func (o *Orchestrator) StartVoice(id model.Identity) (bool, error) {
	if o.voice == nil || !o.voice.RecognitionAvailable() {
		return false, ErrVoiceUnavailable
	}
	o.mu.Lock()
	o.voiceOwner = id
	o.mu.Unlock()
	return o.voice.Start(), nil
}

// StopVoice stops listening. It always succeeds.
func (o *Orchestrator) StopVoice() bool {
	if o.voice == nil {
		return true
	}
	return o.voice.Stop()
}

// Speak synthesizes text on the bridge.
func (o *Orchestrator) Speak(text string, interrupt bool) error {
	if o.voice == nil {
		return voice.ErrSynthesisUnavailable
	}
	return o.voice.Speak(text, interrupt)
}

func (o *Orchestrator) voiceIdentity() model.Identity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.voiceOwner.UserID == "" {
		return model.Identity{UserID: VoiceUserID}
	}
	return o.voiceOwner
}

// HandleVoiceUtterance runs a recognized utterance through the turn
// pipeline, broadcasts the response and speaks it.
func (o *Orchestrator) HandleVoiceUtterance(ctx context.Context, text string) {
	o.broadcast(model.Event{Event: model.EventVoiceInputReceived, Data: model.VoiceInputEvent{Text: text}})

	res, err := o.HandleTurn(ctx, TurnInput{
		Identity: o.voiceIdentity(),
		Message:  text,
		Type:     model.MessageTypeVoice,
	})
	if err != nil {
		if !errors.Is(err, ErrEmptyMessage) {
			o.logger.Warn("voice turn failed", zap.Error(err))
			o.broadcast(model.Event{Event: model.EventVoiceError, Data: model.VoiceErrorEvent{Error: userMessage(err)}})
		}
		return
	}

	o.broadcast(res.AIResponseEvent())

	if o.voice != nil && o.voice.SynthesisAvailable() {
		if err := o.voice.Speak(res.Text, false); err != nil {
			o.logger.Warn("failed to speak response", zap.Error(err))
		}
	}
}

// RunVoice consumes bridge events until ctx or the bridge is done,
// translating them into push events and spawning a turn per utterance.
func (o *Orchestrator) RunVoice(ctx context.Context) {
	if o.voice == nil {
		return
	}
	o.voiceOnce.Do(func() {
		defer o.tasks.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.voice.Done():
				return
			case ev := <-o.voice.Events():
				o.dispatchVoiceEvent(ctx, ev)
			}
		}
	})
}

func (o *Orchestrator) dispatchVoiceEvent(ctx context.Context, ev voice.Event) {
	switch ev.Kind {
	case voice.EventListeningStarted:
		o.broadcast(model.Event{Event: model.EventVoiceStatus, Data: model.VoiceStatusEvent{Listening: true}})
	case voice.EventListeningStopped:
		o.broadcast(model.Event{Event: model.EventVoiceStatus, Data: model.VoiceStatusEvent{Listening: false}})
	case voice.EventSpeakingStarted:
		o.broadcast(model.Event{Event: model.EventSpeakingStatus, Data: model.SpeakingStatusEvent{Speaking: true, Text: ev.Text}})
	case voice.EventSpeakingFinished:
		o.broadcast(model.Event{Event: model.EventSpeakingStatus, Data: model.SpeakingStatusEvent{Speaking: false}})
	case voice.EventSpeechError:
		o.logger.Warn("voice error", zap.String("error", ev.Err))
		o.broadcast(model.Event{Event: model.EventVoiceError, Data: model.VoiceErrorEvent{Error: ev.Err}})
	case voice.EventSpeechRecognized:
		o.tasks.Add(1)
		go func(text string) {
			defer o.tasks.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("panic handling voice input", zap.Any("panic", r))
				}
			}()
			o.HandleVoiceUtterance(ctx, text)
		}(ev.Text)
	}
}
