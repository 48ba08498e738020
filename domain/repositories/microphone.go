package repositories

import "context"

// Microphone yields the audio frames of a single utterance.
// ReadFrame returns io.EOF once end-of-utterance has been detected.
type Microphone interface {
	AudioConfig() AudioConfig
	ReadFrame(ctx context.Context) ([]byte, error)
}
