package entities

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
)

const AudioMIMETypeMP3 = "audio/mpeg"

var (
	ErrEmptyAudio = errors.New("synthesized audio is empty")
	ErrEmptyText  = errors.New("text to synthesize is empty")
)

// AudioBuffer is an encoded audio payload ready to be played from the start
type AudioBuffer struct {
	*bytes.Reader
	data     []byte
	mimeType string
}

var (
	_ io.ReadSeeker = (*AudioBuffer)(nil)
	_ io.WriterTo   = (*AudioBuffer)(nil)
)

// NewMP3Buffer wraps MP3 bytes; the read position starts at offset 0
func NewMP3Buffer(data []byte) (*AudioBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return &AudioBuffer{
		Reader:   bytes.NewReader(data),
		data:     data,
		mimeType: AudioMIMETypeMP3,
	}, nil
}

// MIMEType returns the content type to hand to a playback widget
func (a *AudioBuffer) MIMEType() string {
	return a.mimeType
}

// Bytes returns the full payload regardless of the current read position
func (a *AudioBuffer) Bytes() []byte {
	return a.data
}

// Base64 encodes the full payload for JSON transport
func (a *AudioBuffer) Base64() string {
	return base64.StdEncoding.EncodeToString(a.data)
}

// Offset reports the current read position
func (a *AudioBuffer) Offset() int64 {
	return int64(len(a.data) - a.Reader.Len())
}

// Rewind moves the read position back to the start
func (a *AudioBuffer) Rewind() {
	a.Reader.Seek(0, io.SeekStart)
}

// Chunks splits the payload into pieces of at most size bytes
func (a *AudioBuffer) Chunks(size int) [][]byte {
	if size <= 0 {
		size = len(a.data)
	}
	chunks := make([][]byte, 0, (len(a.data)+size-1)/size)
	for start := 0; start < len(a.data); start += size {
		end := start + size
		if end > len(a.data) {
			end = len(a.data)
		}
		chunks = append(chunks, a.data[start:end])
	}
	return chunks
}
