package repositories

import (
	"context"
	"errors"
)

// ErrNoSpeech means the audio reached the service but held no recognizable speech
var ErrNoSpeech = errors.New("no speech detected in audio")

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete utterance to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// InitTranscribeStreaming initializes a streaming transcription session
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToTextStreaming receives the frames of one utterance.
// End must be called exactly once; it releases the underlying stream.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (string, error)
}
