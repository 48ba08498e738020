package repositories

import "context"

// TextToSpeech abstracts text-to-speech services
type TextToSpeech interface {
	// SynthesizeAudio converts text to MP3-encoded audio
	SynthesizeAudio(ctx context.Context, text string, config VoiceConfig) ([]byte, error)
}

// VoiceConfig represents voice configuration for TTS.
// Empty fields leave the choice to the provider.
type VoiceConfig struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}
