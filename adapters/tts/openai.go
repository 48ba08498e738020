package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/repositories"
)

// OpenAIConfig holds configuration for the OpenAI speech adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// OpenAITTS synthesizes MP3 speech with the OpenAI audio API
type OpenAITTS struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

// NewOpenAITTS creates a new OpenAI TTS instance
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := openai.SpeechModel(config.Model)
	if model == "" {
		model = openai.TTSModel1
		logger.Info("Using default speech model", zap.String("model", string(model)))
	}

	voice := openai.SpeechVoice(config.Voice)
	if voice == "" {
		voice = openai.VoiceAlloy
		logger.Info("Using default voice", zap.String("voice", string(voice)))
	}

	return &OpenAITTS{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		voice:  voice,
		logger: logger,
	}, nil
}

// SynthesizeAudio implements repositories.TextToSpeech
func (o *OpenAITTS) SynthesizeAudio(ctx context.Context, text string, config repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := o.voice
	if config.Voice != "" {
		voice = openai.SpeechVoice(config.Voice)
	}

	o.logger.Info("Converting text to speech",
		zap.String("text", text),
		zap.String("model", string(o.model)),
		zap.String("voice", string(voice)))

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai speech API returned no audio")
	}

	o.logger.Info("Received synthesized audio", zap.String("size", humanize.Bytes(uint64(len(audio)))))
	return audio, nil
}
