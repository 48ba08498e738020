package stt

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/repositories"
)

const (
	defaultMockTranscript = "what is this"
	// RMS of LINEAR16 samples below which audio counts as silence
	defaultSilenceThreshold = 500.0
)

// MockSpeechToText is an offline recognizer for development and tests.
// LINEAR16 audio is gated on signal energy; other encodings only need to be non-empty.
type MockSpeechToText struct {
	transcript       string
	silenceThreshold float64
	logger           *zap.Logger
}

// MockSpeechToTextStream accumulates the frames of one utterance
type MockSpeechToTextStream struct {
	parent *MockSpeechToText
	config repositories.AudioConfig
	audio  []byte
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a mock recognizer that "hears" transcript whenever the audio is not silent
func NewMockSpeechToText(transcript string, logger *zap.Logger) *MockSpeechToText {
	if strings.TrimSpace(transcript) == "" {
		transcript = defaultMockTranscript
	}
	return &MockSpeechToText{
		transcript:       transcript,
		silenceThreshold: defaultSilenceThreshold,
		logger:           logger,
	}
}

// InitTranscribeStreaming creates a new mock streaming session
func (s *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	s.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	return &MockSpeechToTextStream{parent: s, config: config}, nil
}

// Stream implements mock streaming audio processing
func (m *MockSpeechToTextStream) Stream(data []byte) error {
	m.parent.logger.Debug("Processing mock audio chunk", zap.Int("size", len(data)))
	m.audio = append(m.audio, data...)
	return nil
}

// End returns the mock transcription result
func (m *MockSpeechToTextStream) End() (string, error) {
	return m.parent.transcribe(m.audio, m.config)
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	return s.transcribe(audioData, config)
}

func (s *MockSpeechToText) transcribe(audio []byte, config repositories.AudioConfig) (string, error) {
	if len(audio) == 0 {
		return "", repositories.ErrNoSpeech
	}

	if isLinear16(config.Encoding) {
		rms := linear16RMS(audio)
		s.logger.Info("Mock transcription energy", zap.Float64("rms", rms), zap.Int("audioSize", len(audio)))
		if rms < s.silenceThreshold {
			return "", repositories.ErrNoSpeech
		}
	}

	return s.transcript, nil
}

func isLinear16(encoding string) bool {
	switch strings.ToUpper(encoding) {
	case "LINEAR16", "WAV":
		return true
	}
	return false
}

// linear16RMS computes the root mean square of little-endian 16-bit PCM samples
func linear16RMS(audio []byte) float64 {
	samples := len(audio) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(audio[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
