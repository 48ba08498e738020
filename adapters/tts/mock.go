package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/repositories"
)

// bytes of fake audio emitted per input character
const mockBytesPerChar = 64

// MockTTS produces deterministic MP3-shaped bytes for offline runs and tests
type MockTTS struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*MockTTS)(nil)

func NewMockTTS(logger *zap.Logger) *MockTTS {
	return &MockTTS{logger: logger}
}

// SynthesizeAudio returns an ID3 tag followed by MPEG frame sync bytes, sized by text length
func (m *MockTTS) SynthesizeAudio(ctx context.Context, text string, config repositories.VoiceConfig) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	header := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	audio := make([]byte, 0, len(header)+len(text)*mockBytesPerChar)
	audio = append(audio, header...)
	for i := 0; i < len(text); i++ {
		frame := [mockBytesPerChar]byte{0xff, 0xfb, 0x90, text[i]}
		audio = append(audio, frame[:]...)
	}

	m.logger.Debug("Mock synthesized audio",
		zap.String("text", text),
		zap.Int("size", len(audio)))
	return audio, nil
}
