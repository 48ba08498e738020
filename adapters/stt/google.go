package stt

import (
	"context"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/lensa/domain/repositories"
)

// GoogleConfig holds configuration for the Google Cloud Speech adapter
type GoogleConfig struct {
	// CredentialsFile is a service account JSON file; empty uses application default credentials
	CredentialsFile string
	// Model is the recognition model, e.g. "latest_short"; empty lets the service choose
	Model string
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	clientOptions []option.ClientOption
	model         string
	logger        *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud Speech adapter
func NewGoogleSpeechToText(config GoogleConfig, logger *zap.Logger) *GoogleSpeechToText {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
		logger.Info("Using speech credentials file", zap.String("credentialsFile", config.CredentialsFile))
	}

	return &GoogleSpeechToText{
		clientOptions: opts,
		model:         config.Model,
		logger:        logger,
	}
}

func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	// Convert encoding string to Google Speech API enum before dialing
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx, g.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(config.SampleRate),
		LanguageCode:               config.Language,
		Model:                      g.model,
		EnableAutomaticPunctuation: true,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.logger.Debug("Streaming recognition opened",
		zap.String("encoding", config.Encoding),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	return &GoogleSpeechToTextStream{
		client: client,
		stream: stream,
		ctx:    ctx,
		result: make(chan streamResult, 1),
	}, nil
}

type streamResult struct {
	transcript string
	err        error
}

type GoogleSpeechToTextStream struct {
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	ctx            context.Context
	audioReceived  bool
	receiverActive bool
	result         chan streamResult
}

func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	// Start the result receiver goroutine only once
	if !g.receiverActive {
		g.receiverActive = true
		go g.receiveResults()
	}

	if len(data) == 0 {
		return nil
	}
	g.audioReceived = true

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		// io.EOF from Send means the server closed the stream; the real status surfaces from Recv
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to send audio data: %w", err)
	}

	return nil
}

func (g *GoogleSpeechToTextStream) End() (string, error) {
	defer g.client.Close()

	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	if !g.audioReceived {
		return "", repositories.ErrNoSpeech
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case res := <-g.result:
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.transcript) == "" {
			return "", repositories.ErrNoSpeech
		}
		return res.transcript, nil
	}
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	var finalTranscription strings.Builder

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.result <- streamResult{transcript: strings.TrimSpace(finalTranscription.String())}
			return
		}
		if err != nil {
			g.result <- streamResult{err: fmt.Errorf("failed to receive response: %w", err)}
			return
		}
		if st := resp.GetError(); st != nil {
			g.result <- streamResult{err: fmt.Errorf("recognition error %d: %s", st.GetCode(), st.GetMessage())}
			return
		}

		// Process results - only consider final ones
		for _, result := range resp.GetResults() {
			if result.GetIsFinal() && len(result.GetAlternatives()) > 0 {
				if finalTranscription.Len() > 0 {
					finalTranscription.WriteByte(' ')
				}
				finalTranscription.WriteString(strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()))
			}
		}
	}
}

// TranscribeAudio converts audio data to text using Google Cloud Speech-to-Text (non-streaming)
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := g.InitTranscribeStreaming(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize streaming: %w", err)
	}

	if err := stream.Stream(audioData); err != nil {
		stream.End()
		return "", fmt.Errorf("failed to stream audio data: %w", err)
	}

	return stream.End()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
