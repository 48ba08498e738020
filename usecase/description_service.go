package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
	"github.com/satriahrh/lensa/internal/pipeline"
)

// Stage names of the description pipeline
const (
	StageDecode     = "decode"
	StageCaption    = "caption"
	StageSynthesize = "synthesize"
)

// Description is the result of one upload
type Description struct {
	Execution *pipeline.Execution
	Image     *entities.UploadedImage
	Caption   *entities.Caption
	Audio     *entities.AudioBuffer
}

// DescriptionService turns uploaded images into a caption and its spoken form
type DescriptionService struct {
	captioner    repositories.ImageCaptioner
	textToSpeech repositories.TextToSpeech
	sessions     repositories.SessionRepository
	runner       *pipeline.Runner
	voice        repositories.VoiceConfig
	logger       *zap.Logger
}

// NewDescriptionService creates a new description service
func NewDescriptionService(
	captioner repositories.ImageCaptioner,
	tts repositories.TextToSpeech,
	sessions repositories.SessionRepository,
	runner *pipeline.Runner,
	voice repositories.VoiceConfig,
	logger *zap.Logger,
) *DescriptionService {
	return &DescriptionService{
		captioner:    captioner,
		textToSpeech: tts,
		sessions:     sessions,
		runner:       runner,
		voice:        voice,
		logger:       logger,
	}
}

// GenerateCaption asks the captioning model for a description of img
func (s *DescriptionService) GenerateCaption(ctx context.Context, img *entities.UploadedImage) (*entities.Caption, error) {
	text, err := s.captioner.GenerateCaption(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to generate caption: %w", err)
	}

	caption, err := entities.NewCaption(text, img, s.captioner.Model())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Caption generated",
		zap.String("filename", img.Filename),
		zap.String("caption", caption.Text),
		zap.String("model", caption.Model))
	return caption, nil
}

// Synthesize converts text to MP3 audio positioned at its start.
// A configured voice language wins over the given one; with neither the provider picks.
func (s *DescriptionService) Synthesize(ctx context.Context, text, language string) (*entities.AudioBuffer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, entities.ErrEmptyText
	}

	voice := s.voice
	if voice.Language == "" {
		voice.Language = language
	}

	data, err := s.textToSpeech.SynthesizeAudio(ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}

	audio, err := entities.NewMP3Buffer(data)
	if err != nil {
		return nil, err
	}
	audio.Rewind()

	s.logger.Info("TTS completed", zap.String("audioSize", humanize.Bytes(uint64(len(data)))))
	return audio, nil
}

// Describe runs decode, caption and synthesize for an upload and keeps the caption in the session
func (s *DescriptionService) Describe(ctx context.Context, sessionID, filename string, data []byte, observer pipeline.Observer) (*Description, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Describing image",
		zap.String("sessionID", sessionID),
		zap.String("filename", filename),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	result := &Description{}
	stages := []pipeline.Stage{
		{
			Name: StageDecode,
			Run: func(ctx context.Context) error {
				img, err := entities.DecodeUploadedImage(filename, data)
				if err != nil {
					return err
				}
				result.Image = img
				return s.sessions.Modify(ctx, sessionID, func(current *entities.Session) error {
					current.BeginUpload(img)
					return nil
				})
			},
		},
		{
			Name: StageCaption,
			Run: func(ctx context.Context) error {
				caption, err := s.GenerateCaption(ctx, result.Image)
				if err != nil {
					return err
				}
				result.Caption = caption
				return s.sessions.Modify(ctx, sessionID, func(current *entities.Session) error {
					// a newer upload owns the session now; its caption is on the way
					if !caption.Describes(current.Image) {
						s.logger.Info("Caption superseded by a newer upload",
							zap.String("sessionID", sessionID),
							zap.String("filename", result.Image.Filename))
						return nil
					}
					current.SetCaption(caption)
					return nil
				})
			},
		},
		{
			Name: StageSynthesize,
			Run: func(ctx context.Context) error {
				audio, err := s.Synthesize(ctx, result.Caption.Text, session.Language)
				if err != nil {
					return err
				}
				result.Audio = audio
				return nil
			},
		},
	}

	exec, err := s.runner.Run(ctx, "describe", stages, observer)
	result.Execution = exec
	if err != nil {
		return result, err
	}
	return result, nil
}
