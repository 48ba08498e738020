// Package microphone provides utterance sources for the speech recognizer.
package microphone

import (
	"context"
	"io"

	"github.com/satriahrh/lensa/domain/repositories"
)

// DefaultFrameSize matches the chunk size the browser recorder emits
const DefaultFrameSize = 4096

// Recorded replays an utterance that was captured in full by the client
type Recorded struct {
	config    repositories.AudioConfig
	data      []byte
	frameSize int
	offset    int
}

var _ repositories.Microphone = (*Recorded)(nil)

// NewRecorded splits data into frames of frameSize bytes (DefaultFrameSize when <= 0)
func NewRecorded(data []byte, config repositories.AudioConfig, frameSize int) *Recorded {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Recorded{config: config, data: data, frameSize: frameSize}
}

func (r *Recorded) AudioConfig() repositories.AudioConfig {
	return r.config
}

// ReadFrame returns the next frame, or io.EOF once the recording is exhausted
func (r *Recorded) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.offset >= len(r.data) {
		return nil, io.EOF
	}

	end := min(r.offset+r.frameSize, len(r.data))
	frame := r.data[r.offset:end]
	r.offset = end
	return frame, nil
}
