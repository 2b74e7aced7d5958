package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/middleware"
	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/voice"
)

// maxAudioBytes caps one uploaded utterance.
const maxAudioBytes = 10 << 20

// VoiceStatusResponse is the body of the voice start/stop endpoints.
type VoiceStatusResponse struct {
	Status    string    `json:"status"`
	Listening bool      `json:"listening"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// StartVoice handles POST /api/voice/start
func (h *Handler) StartVoice(w http.ResponseWriter, r *http.Request) {
	b := h.bridge()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice service not available")
		return
	}
	if !b.RecognitionAvailable() {
		writeError(w, http.StatusBadRequest, "Voice recognition not available")
		return
	}

	started, err := h.orch.StartVoice(middleware.GetIdentity(r.Context()))
	if err != nil || !started {
		h.logger.Warn("failed to start voice listening", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start voice listening")
		return
	}

	writeJSON(w, http.StatusOK, VoiceStatusResponse{
		Status:    "Voice listening started",
		Listening: true,
		Success:   true,
		Timestamp: h.now().UTC(),
	})
}

// StopVoice handles POST /api/voice/stop
func (h *Handler) StopVoice(w http.ResponseWriter, r *http.Request) {
	if h.bridge() == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice service not available")
		return
	}

	writeJSON(w, http.StatusOK, VoiceStatusResponse{
		Status:    "Voice listening stopped",
		Listening: false,
		Success:   h.orch.StopVoice(),
		Timestamp: h.now().UTC(),
	})
}

// UploadAudio handles POST /api/voice/audio
//
// The body is either a multipart form with an "audio" file or the raw
// recording. The utterance is queued for the listening bridge.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	b := h.bridge()
	if b == nil || h.capturer == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice service not available")
		return
	}
	if !b.IsListening() {
		writeError(w, http.StatusConflict, "Voice listening not started")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	audio, err := readAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.capturer.Submit(audio); err != nil {
		if errors.Is(err, voice.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "Audio queue full")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to queue audio")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "Audio queued",
		"bytes":  len(audio.Data),
		"format": audio.Format,
	})
}

func readAudio(r *http.Request) (*voice.Audio, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		data   []byte
		format = r.URL.Query().Get("format")
		err    error
	)
	if mediaType == "multipart/form-data" {
		file, header, ferr := r.FormFile("audio")
		if ferr != nil {
			return nil, errors.New("audio file is required")
		}
		defer file.Close()
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
		}
		data, err = io.ReadAll(file)
	} else {
		if format == "" {
			format = audioFormat(mediaType)
		}
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		return nil, errors.New("failed to read audio")
	}
	if len(data) == 0 {
		return nil, errors.New("audio is empty")
	}
	if format == "" {
		format = "wav"
	}
	return &voice.Audio{Data: data, Format: strings.ToLower(format)}, nil
}

func audioFormat(mediaType string) string {
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	}
	return ""
}

// Speak handles POST /api/speak
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	b := h.bridge()
	if b == nil || !b.SynthesisAvailable() {
		writeError(w, http.StatusBadRequest, voice.ErrSynthesisUnavailable.Error())
		return
	}

	var req model.SpeakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch err := h.orch.Speak(req.Text, req.Interrupt); {
	case errors.Is(err, voice.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	case errors.Is(err, voice.ErrSynthesisUnavailable):
		writeError(w, http.StatusBadRequest, voice.ErrSynthesisUnavailable.Error())
		return
	case err != nil:
		h.logger.Warn("failed to start speech", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start speech")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "Speaking text",
		"text":      req.Text,
		"timestamp": h.now().UTC(),
	})
}

// VoiceSettingsResponse is the body of GET /api/voice/settings.
type VoiceSettingsResponse struct {
	Settings        map[string]any    `json:"settings"`
	AvailableVoices []voice.VoiceInfo `json:"available_voices"`
	Status          voice.Status      `json:"status"`
}

// GetVoiceSettings handles GET /api/voice/settings
func (h *Handler) GetVoiceSettings(w http.ResponseWriter, r *http.Request) {
	b := h.bridge()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice service not available")
		return
	}
	writeJSON(w, http.StatusOK, VoiceSettingsResponse{
		Settings:        b.Settings(),
		AvailableVoices: b.Voices(),
		Status:          b.Status(),
	})
}

// UpdateVoiceSettings handles POST /api/voice/settings
func (h *Handler) UpdateVoiceSettings(w http.ResponseWriter, r *http.Request) {
	b := h.bridge()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice service not available")
		return
	}

	var req model.VoiceSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "Settings updated",
		"settings": b.UpdateSettings(req.Settings),
	})
}
