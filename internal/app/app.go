// Package app builds the providers and services selected by configuration.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/adapters"
	"github.com/satriahrh/lensa/adapters/captioner"
	"github.com/satriahrh/lensa/adapters/stt"
	"github.com/satriahrh/lensa/adapters/tts"
	"github.com/satriahrh/lensa/domain/repositories"
	"github.com/satriahrh/lensa/internal/config"
	"github.com/satriahrh/lensa/internal/pipeline"
	"github.com/satriahrh/lensa/usecase"
)

// Providers are the model-backed adapters
type Providers struct {
	Captioner repositories.ImageCaptioner
	TTS       repositories.TextToSpeech
	STT       repositories.SpeechToText
}

// NewProviders creates the captioner, text-to-speech and speech-to-text adapters named in cfg
func NewProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Providers, error) {
	imageCaptioner, err := newCaptioner(ctx, cfg, logger.Named("captioner"))
	if err != nil {
		return nil, fmt.Errorf("failed to create captioner: %w", err)
	}

	textToSpeech, err := newTextToSpeech(cfg, logger.Named("tts"))
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech: %w", err)
	}

	speechToText, err := newSpeechToText(cfg, logger.Named("stt"))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech-to-text: %w", err)
	}

	logger.Info("Providers ready",
		zap.String("captioner", cfg.Captioner.Provider),
		zap.String("captionModel", imageCaptioner.Model()),
		zap.String("tts", cfg.TTS.Provider),
		zap.String("stt", cfg.STT.Provider))

	return &Providers{Captioner: imageCaptioner, TTS: textToSpeech, STT: speechToText}, nil
}

func newCaptioner(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.ImageCaptioner, error) {
	switch strings.ToLower(cfg.Captioner.Provider) {
	case config.ProviderMock:
		return captioner.NewMockCaptioner(logger), nil
	case config.ProviderGemini:
		return captioner.NewGeminiCaptioner(ctx, captioner.GeminiConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Captioner.Model,
			Prompt: cfg.Captioner.Prompt,
		}, logger)
	case config.ProviderOpenAI:
		return captioner.NewOpenAICaptioner(captioner.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.Captioner.Model,
			Prompt:  cfg.Captioner.Prompt,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown captioner provider %q", cfg.Captioner.Provider)
	}
}

func newTextToSpeech(cfg config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch strings.ToLower(cfg.TTS.Provider) {
	case config.ProviderMock:
		return tts.NewMockTTS(logger), nil
	case config.ProviderElevenLabs:
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabs.APIKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.TTS.Model,
		}, logger)
	case config.ProviderOpenAI:
		return tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}
}

func newSpeechToText(cfg config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch strings.ToLower(cfg.STT.Provider) {
	case config.ProviderMock:
		return stt.NewMockSpeechToText(cfg.STT.MockTranscript, logger), nil
	case config.ProviderGoogle:
		return stt.NewGoogleSpeechToText(stt.GoogleConfig{
			CredentialsFile: cfg.Google.CredentialsFile,
			Model:           cfg.STT.Model,
		}, logger), nil
	case config.ProviderOpenAI:
		return stt.NewOpenAISpeechToText(stt.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.STT.Model,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

// Services are the use cases shared by the server and the CLI
type Services struct {
	Sessions     *adapters.MemorySessionRepository
	Descriptions *usecase.DescriptionService
	Conversation *usecase.ConversationService
}

// NewServices wires the use cases over the providers and an in-memory session store
func NewServices(cfg config.Config, providers *Providers, logger *zap.Logger) *Services {
	sessions := adapters.NewMemorySessionRepository(logger.Named("sessions"))

	// voices are picked when the provider is built; an empty language falls back to the session language
	voice := repositories.VoiceConfig{Language: cfg.TTS.Language}

	descriptions := usecase.NewDescriptionService(
		providers.Captioner,
		providers.TTS,
		sessions,
		pipeline.NewRunner(logger.Named("pipeline")),
		voice,
		logger.Named("description"),
	)
	recognizer := usecase.NewRecognizer(providers.STT, logger.Named("recognizer"))
	conversation := usecase.NewConversationService(recognizer, descriptions, sessions, logger.Named("conversation"))

	return &Services{
		Sessions:     sessions,
		Descriptions: descriptions,
		Conversation: conversation,
	}
}
