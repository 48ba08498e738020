package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/repositories"
)

// OpenAIConfig holds configuration for the Whisper adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISpeechToText transcribes buffered utterances with the OpenAI audio API
type OpenAISpeechToText struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*OpenAISpeechToText)(nil)

// NewOpenAISpeechToText creates a Whisper-backed recognizer
func NewOpenAISpeechToText(config OpenAIConfig, logger *zap.Logger) (*OpenAISpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = openai.Whisper1
		logger.Info("Using default transcription model", zap.String("model", model))
	}

	return &OpenAISpeechToText{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger,
	}, nil
}

// InitTranscribeStreaming buffers frames; the request is sent when the utterance ends
func (o *OpenAISpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	if _, err := uploadName(config.Encoding); err != nil {
		return nil, err
	}
	return &openAIStream{ctx: ctx, parent: o, config: config}, nil
}

// TranscribeAudio implements repositories.SpeechToText
func (o *OpenAISpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", repositories.ErrNoSpeech
	}

	name, err := uploadName(config.Encoding)
	if err != nil {
		return "", err
	}
	// WAV uploads already carry their header
	if isLinear16(config.Encoding) && !bytes.HasPrefix(audioData, []byte("RIFF")) {
		audioData = wrapWAV(audioData, config.SampleRate)
	}

	o.logger.Info("Sending utterance for transcription",
		zap.String("model", o.model),
		zap.String("encoding", config.Encoding),
		zap.String("size", humanize.Bytes(uint64(len(audioData)))))

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: name,
		Reader:   bytes.NewReader(audioData),
		Language: languageOnly(config.Language),
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", repositories.ErrNoSpeech
	}
	return text, nil
}

type openAIStream struct {
	ctx    context.Context
	parent *OpenAISpeechToText
	config repositories.AudioConfig
	audio  bytes.Buffer
}

func (s *openAIStream) Stream(data []byte) error {
	s.audio.Write(data)
	return nil
}

func (s *openAIStream) End() (string, error) {
	return s.parent.TranscribeAudio(s.ctx, s.audio.Bytes(), s.config)
}

// uploadName picks a file name whose extension tells the API how to decode the payload
func uploadName(encoding string) (string, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16", "WAV":
		return "utterance.wav", nil
	case "WEBM_OPUS":
		return "utterance.webm", nil
	case "OGG_OPUS":
		return "utterance.ogg", nil
	case "FLAC":
		return "utterance.flac", nil
	default:
		return "", fmt.Errorf("unsupported encoding for openai transcription: %s", encoding)
	}
}

// languageOnly turns a BCP-47 tag like "en-US" into the ISO-639-1 code the API expects
func languageOnly(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// wrapWAV prefixes mono 16-bit PCM with a RIFF header
func wrapWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	const channels, bitsPerSample = 1, 16
	byteRate := sampleRate * channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
