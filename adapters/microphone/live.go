package microphone

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/satriahrh/lensa/domain/repositories"
)

var ErrMicrophoneClosed = errors.New("microphone is closed")

// Live receives frames as they arrive from a connected client.
// The client signals end-of-utterance with Close, or abandons it with Abort.
type Live struct {
	config repositories.AudioConfig
	frames chan []byte

	endOnce   sync.Once
	endCh     chan struct{}
	abortOnce sync.Once
	abortCh   chan struct{}
	err       error // set before abortCh is closed
}

var _ repositories.Microphone = (*Live)(nil)

func NewLive(config repositories.AudioConfig, buffer int) *Live {
	if buffer <= 0 {
		buffer = 64
	}
	return &Live{
		config:  config,
		frames:  make(chan []byte, buffer),
		endCh:   make(chan struct{}),
		abortCh: make(chan struct{}),
	}
}

func (l *Live) AudioConfig() repositories.AudioConfig {
	return l.config
}

// Push queues a frame. It blocks while the buffer is full.
func (l *Live) Push(ctx context.Context, frame []byte) error {
	select {
	case <-l.endCh:
		return ErrMicrophoneClosed
	case <-l.abortCh:
		return ErrMicrophoneClosed
	default:
	}

	select {
	case l.frames <- frame:
		return nil
	case <-l.abortCh:
		return ErrMicrophoneClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks end-of-utterance; frames already pushed are still delivered
func (l *Live) Close() {
	l.endOnce.Do(func() { close(l.endCh) })
}

// Abort ends the utterance with err, dropping any queued frames
func (l *Live) Abort(err error) {
	if err == nil {
		err = ErrMicrophoneClosed
	}
	l.abortOnce.Do(func() {
		l.err = err
		close(l.abortCh)
	})
}

// ReadFrame implements repositories.Microphone
func (l *Live) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-l.abortCh:
		return nil, l.err
	default:
	}

	select {
	case frame := <-l.frames:
		return frame, nil
	case <-l.endCh:
		select {
		case frame := <-l.frames:
			return frame, nil
		default:
			return nil, io.EOF
		}
	case <-l.abortCh:
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
