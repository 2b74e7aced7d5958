package voice

import (
	"time"
)

// Settings keys.
const (
	SettingSpeechRate             = "speech_rate"
	SettingSpeechVolume           = "speech_volume"
	SettingRecognitionTimeout     = "recognition_timeout"
	SettingPhraseTimeout          = "phrase_timeout"
	SettingAmbientNoiseDuration   = "ambient_noise_duration"
	SettingEnergyThreshold        = "energy_threshold"
	SettingDynamicEnergyThreshold = "dynamic_energy_threshold"
	SettingVoice                  = "voice"
)

// DefaultSettings returns the initial settings map.
func DefaultSettings() map[string]any {
	return map[string]any{
		SettingSpeechRate:             150,
		SettingSpeechVolume:           0.9,
		SettingRecognitionTimeout:     5,
		SettingPhraseTimeout:          2,
		SettingAmbientNoiseDuration:   1,
		SettingEnergyThreshold:        300,
		SettingDynamicEnergyThreshold: true,
	}
}

func copySettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// number reads a numeric setting that may have been decoded from JSON.
func number(settings map[string]any, key string, def float64) float64 {
	switch v := settings[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return def
	}
}

func seconds(settings map[string]any, key string, def float64) time.Duration {
	return time.Duration(number(settings, key, def) * float64(time.Second))
}

func speechOptions(settings map[string]any, defaultVoice string) SpeechOptions {
	opts := SpeechOptions{
		Voice:  defaultVoice,
		Rate:   number(settings, SettingSpeechRate, 150),
		Volume: number(settings, SettingSpeechVolume, 0.9),
	}
	if v, ok := settings[SettingVoice].(string); ok && v != "" {
		opts.Voice = v
	}
	return opts
}
