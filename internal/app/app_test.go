package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lensa/adapters/captioner"
	"github.com/satriahrh/lensa/adapters/stt"
	"github.com/satriahrh/lensa/adapters/tts"
	"github.com/satriahrh/lensa/internal/config"
)

func TestNewProviders_Defaults(t *testing.T) {
	providers, err := NewProviders(context.Background(), config.Default(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.IsType(t, &captioner.MockCaptioner{}, providers.Captioner)
	assert.IsType(t, &tts.MockTTS{}, providers.TTS)
	assert.IsType(t, &stt.MockSpeechToText{}, providers.STT)
}

func TestNewProviders_Selection(t *testing.T) {
	cfg := config.Default()
	cfg.Captioner.Provider = "OpenAI"
	cfg.TTS.Provider = config.ProviderElevenLabs
	cfg.STT.Provider = config.ProviderGoogle
	cfg.OpenAI.APIKey = "sk-test"
	cfg.ElevenLabs.APIKey = "xi-test"

	providers, err := NewProviders(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.IsType(t, &captioner.OpenAICaptioner{}, providers.Captioner)
	assert.IsType(t, &tts.ElevenLabsTTS{}, providers.TTS)
	assert.IsType(t, &stt.GoogleSpeechToText{}, providers.STT)

	cfg.Captioner.Provider = config.ProviderGemini
	cfg.Gemini.APIKey = "gemini-test"
	cfg.TTS.Provider = config.ProviderOpenAI
	cfg.STT.Provider = config.ProviderOpenAI

	providers, err = NewProviders(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.IsType(t, &captioner.GeminiCaptioner{}, providers.Captioner)
	assert.IsType(t, &tts.OpenAITTS{}, providers.TTS)
	assert.IsType(t, &stt.OpenAISpeechToText{}, providers.STT)
}

func TestNewProviders_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Provider = "gtts"

	_, err := NewProviders(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unknown tts provider")
}

func TestNewServices_DescribeWithMocks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	providers, err := NewProviders(context.Background(), config.Default(), logger)
	require.NoError(t, err)

	services := NewServices(config.Default(), providers, logger)
	require.NotNil(t, services.Descriptions)
	require.NotNil(t, services.Conversation)

	audio, err := services.Descriptions.Synthesize(context.Background(), "a red square", "en-US")
	require.NoError(t, err)
	assert.NotEmpty(t, audio.Bytes())
	assert.Equal(t, 0, services.Sessions.Count())
}
