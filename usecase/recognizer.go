package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

// Recognizer captures one utterance from a microphone and transcribes it
type Recognizer struct {
	speechToText repositories.SpeechToText
	logger       *zap.Logger
}

func NewRecognizer(stt repositories.SpeechToText, logger *zap.Logger) *Recognizer {
	return &Recognizer{speechToText: stt, logger: logger}
}

// Listen streams frames from mic until end-of-utterance.
// Service failures and unrecognized speech are reported in the returned Recognition;
// the error is non-nil only when the microphone itself fails.
func (r *Recognizer) Listen(ctx context.Context, mic repositories.Microphone) (*entities.Recognition, error) {
	recognition := entities.NewRecognition()
	if err := recognition.Transition(entities.RecognitionListening); err != nil {
		return nil, err
	}

	config := mic.AudioConfig()
	r.logger.Info("Listening",
		zap.String("encoding", config.Encoding),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	stream, err := r.speechToText.InitTranscribeStreaming(ctx, config)
	if err != nil {
		r.logger.Error("Failed to open transcription stream", zap.Error(err))
		recognition.ServiceFailed(err)
		return recognition, nil
	}

	for {
		frame, err := mic.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stream.End()
			return nil, fmt.Errorf("failed to capture audio: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		recognition.FrameCount++
		recognition.AudioBytes += len(frame)

		if err := stream.Stream(frame); err != nil {
			r.logger.Error("Failed to stream audio", zap.Error(err))
			stream.End()
			recognition.ServiceFailed(err)
			return recognition, nil
		}
	}

	text, err := stream.End()
	switch {
	case errors.Is(err, repositories.ErrNoSpeech):
		recognition.Unrecognized(err)
	case err != nil:
		r.logger.Error("Transcription failed", zap.Error(err))
		recognition.ServiceFailed(err)
	case strings.TrimSpace(text) == "":
		recognition.Unrecognized(nil)
	default:
		recognition.Transcribed(strings.TrimSpace(text))
	}

	r.logger.Info("Recognition finished",
		zap.String("state", string(recognition.State)),
		zap.String("text", recognition.Text),
		zap.Int("frames", recognition.FrameCount),
		zap.Duration("elapsed", recognition.Duration()))
	return recognition, nil
}
