package usecase

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lensa/adapters"
	"github.com/satriahrh/lensa/adapters/captioner"
	"github.com/satriahrh/lensa/adapters/microphone"
	"github.com/satriahrh/lensa/adapters/stt"
	"github.com/satriahrh/lensa/adapters/tts"
	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
	"github.com/satriahrh/lensa/internal/pipeline"
)

var linear16 = repositories.AudioConfig{SampleRate: 16000, Encoding: "LINEAR16", Language: "en-US"}

func redPNG(t *testing.T, size int) []byte {
	t.Helper()
	return redRect(t, size, size)
}

func redRect(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// speech returns one second of a loud LINEAR16 tone
func speech() []byte {
	out := make([]byte, 32000)
	for i := 0; i < 16000; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*220*float64(i)/16000))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// spyTTS records the texts it was asked to speak and in which language
type spyTTS struct {
	mu        sync.Mutex
	texts     []string
	languages []string
	inner     repositories.TextToSpeech
}

func (s *spyTTS) SynthesizeAudio(ctx context.Context, text string, config repositories.VoiceConfig) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.languages = append(s.languages, config.Language)
	s.mu.Unlock()
	return s.inner.SynthesizeAudio(ctx, text, config)
}

type failingCaptioner struct{ err error }

func (f failingCaptioner) GenerateCaption(context.Context, *entities.UploadedImage) (string, error) {
	return "", f.err
}
func (f failingCaptioner) Model() string { return "failing" }

// unreachableSTT fails the way a recognizer with no network does
type unreachableSTT struct {
	failOnOpen bool
}

var errUnreachable = errors.New("dial tcp: connection refused")

func (u unreachableSTT) TranscribeAudio(context.Context, []byte, repositories.AudioConfig) (string, error) {
	return "", errUnreachable
}

func (u unreachableSTT) InitTranscribeStreaming(context.Context, repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	if u.failOnOpen {
		return nil, errUnreachable
	}
	return unreachableStream{}, nil
}

type unreachableStream struct{}

func (unreachableStream) Stream([]byte) error   { return nil }
func (unreachableStream) End() (string, error) { return "", errUnreachable }

// brokenMic fails after its first frame
type brokenMic struct{ reads int }

func (b *brokenMic) AudioConfig() repositories.AudioConfig { return linear16 }
func (b *brokenMic) ReadFrame(context.Context) ([]byte, error) {
	b.reads++
	if b.reads > 1 {
		return nil, errors.New("device unplugged")
	}
	return speech()[:3200], nil
}

// interruptingMic runs interrupt before handing out its first frame
type interruptingMic struct {
	repositories.Microphone
	interrupt func()
	fired     bool
}

func (m *interruptingMic) ReadFrame(ctx context.Context) ([]byte, error) {
	if !m.fired {
		m.fired = true
		m.interrupt()
	}
	return m.Microphone.ReadFrame(ctx)
}

// interruptingCaptioner runs interrupt during its first caption request
type interruptingCaptioner struct {
	repositories.ImageCaptioner
	interrupt func()
	fired     bool
}

func (c *interruptingCaptioner) GenerateCaption(ctx context.Context, img *entities.UploadedImage) (string, error) {
	if !c.fired {
		c.fired = true
		c.interrupt()
	}
	return c.ImageCaptioner.GenerateCaption(ctx, img)
}

type fixture struct {
	sessions     *adapters.MemorySessionRepository
	tts          *spyTTS
	descriptions *DescriptionService
	conversation *ConversationService
	session      *entities.Session
}

func newFixture(t *testing.T, capt repositories.ImageCaptioner, speechToText repositories.SpeechToText) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sessions := adapters.NewMemorySessionRepository(logger)
	spy := &spyTTS{inner: tts.NewMockTTS(logger)}
	descriptions := NewDescriptionService(capt, spy, sessions, pipeline.NewRunner(logger), repositories.VoiceConfig{}, logger)
	conversation := NewConversationService(NewRecognizer(speechToText, logger), descriptions, sessions, logger)

	session := entities.NewSession(time.Hour)
	require.NoError(t, sessions.Create(context.Background(), session))

	return &fixture{
		sessions:     sessions,
		tts:          spy,
		descriptions: descriptions,
		conversation: conversation,
		session:      session,
	}
}

func TestDescribe_RedSquareEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("", logger))

	var events []pipeline.Event
	desc, err := f.descriptions.Describe(context.Background(), f.session.ID, "red.png", redPNG(t, 100), func(e pipeline.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.NotEmpty(t, desc.Caption.Text)
	assert.Equal(t, "a red square", desc.Caption.Text)
	require.NotNil(t, desc.Audio)
	assert.NotZero(t, desc.Audio.Len())
	assert.Equal(t, int64(0), desc.Audio.Offset())
	assert.Equal(t, entities.AudioMIMETypeMP3, desc.Audio.MIMEType())
	assert.Equal(t, []string{"a red square"}, f.tts.texts)
	assert.Equal(t, pipeline.RunStateCompleted, desc.Execution.State)

	var completed []string
	for _, e := range events {
		if e.Type == pipeline.EventStageCompleted {
			completed = append(completed, e.Stage)
		}
	}
	assert.Equal(t, []string{StageDecode, StageCaption, StageSynthesize}, completed)

	stored, err := f.sessions.Get(context.Background(), f.session.ID)
	require.NoError(t, err)
	caption, err := stored.CurrentCaption()
	require.NoError(t, err)
	assert.True(t, caption.Describes(desc.Image))
}

func TestDescribe_RejectsUnsupportedUpload(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("", logger))

	desc, err := f.descriptions.Describe(context.Background(), f.session.ID, "red.gif", redPNG(t, 10), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrUnsupportedImageFormat)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDecode, stageErr.Stage)
	assert.Nil(t, desc.Caption)
	assert.Empty(t, f.tts.texts)

	_, err = f.descriptions.Describe(context.Background(), f.session.ID, "broken.png", []byte("not a png"), nil)
	assert.ErrorIs(t, err, entities.ErrImageDecode)
}

func TestDescribe_CaptionFailurePropagatesAndClearsOldCaption(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("", logger))
	ctx := context.Background()

	_, err := f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 20), nil)
	require.NoError(t, err)

	boom := errors.New("model runtime error")
	f.descriptions.captioner = failingCaptioner{err: boom}

	_, err = f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 30), nil)
	assert.ErrorIs(t, err, boom)

	stored, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	_, err = stored.CurrentCaption()
	assert.ErrorIs(t, err, entities.ErrNoCaption)
}

func TestDescribe_UnknownSession(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("", logger))

	_, err := f.descriptions.Describe(context.Background(), "missing", "red.png", redPNG(t, 10), nil)
	assert.ErrorIs(t, err, entities.ErrSessionNotFound)
}

func TestSynthesize(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("", logger))
	ctx := context.Background()

	first, err := f.descriptions.Synthesize(ctx, "a red square", "")
	require.NoError(t, err)
	second, err := f.descriptions.Synthesize(ctx, "a red square", "en-US")
	require.NoError(t, err)

	assert.NotZero(t, first.Len())
	assert.Equal(t, int64(0), first.Offset())
	assert.Equal(t, int64(0), second.Offset())

	// buffers are independent: draining one leaves the other at its start
	_, err = io.Copy(io.Discard, first)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Offset())
	assert.NotSame(t, first, second)

	_, err = f.descriptions.Synthesize(ctx, "  ", "")
	assert.ErrorIs(t, err, entities.ErrEmptyText)
}

func TestRecognizer_StateMachine(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name      string
		stt       repositories.SpeechToText
		audio     []byte
		wantState entities.RecognitionState
		wantText  string
		notice    string
	}{
		{
			name:      "clear speech",
			stt:       stt.NewMockSpeechToText("hello world", logger),
			audio:     speech(),
			wantState: entities.RecognitionTranscribed,
			wantText:  "hello world",
		},
		{
			name:      "silence",
			stt:       stt.NewMockSpeechToText("hello world", logger),
			audio:     make([]byte, 32000),
			wantState: entities.RecognitionUnrecognized,
			notice:    entities.NoticeUnrecognized,
		},
		{
			name:      "service unreachable on close",
			stt:       unreachableSTT{},
			audio:     speech(),
			wantState: entities.RecognitionServiceError,
			notice:    entities.NoticeServiceError,
		},
		{
			name:      "service unreachable on open",
			stt:       unreachableSTT{failOnOpen: true},
			audio:     speech(),
			wantState: entities.RecognitionServiceError,
			notice:    entities.NoticeServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recognizer := NewRecognizer(tt.stt, logger)

			recognition, err := recognizer.Listen(context.Background(), microphone.NewRecorded(tt.audio, linear16, 3200))
			require.NoError(t, err)

			assert.Equal(t, tt.wantState, recognition.State)
			assert.Equal(t, tt.wantText, recognition.Text)
			assert.Equal(t, tt.notice, recognition.Notice)

			_, ok := recognition.Transcript()
			assert.Equal(t, tt.wantState == entities.RecognitionTranscribed, ok)
		})
	}
}

func TestRecognizer_MicrophoneErrorPropagates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	recognizer := NewRecognizer(stt.NewMockSpeechToText("hello", logger), logger)

	recognition, err := recognizer.Listen(context.Background(), &brokenMic{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.Nil(t, recognition)
}

func TestAsk_CombinesQueryAndCaption(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))
	ctx := context.Background()

	caption, err := entities.NewCaption("a red square", nil, "test")
	require.NoError(t, err)
	f.session.SetCaption(caption)
	require.NoError(t, f.sessions.Update(ctx, f.session))

	var observed *entities.Recognition
	reply, err := f.conversation.AskObserved(ctx, f.session.ID, microphone.NewRecorded(speech(), linear16, 0), func(r *entities.Recognition) {
		observed = r
	})
	require.NoError(t, err)

	assert.Same(t, reply.Recognition, observed)
	assert.Equal(t, entities.RecognitionTranscribed, reply.Recognition.State)
	assert.Equal(t, "what is this", reply.Recognition.Text)

	require.Len(t, f.tts.texts, 1)
	spoken := f.tts.texts[0]
	assert.True(t, strings.Contains(spoken, "what is this"))
	assert.True(t, strings.Contains(spoken, "a red square"))
	assert.Equal(t, "You asked: what is this. The description of the image is: a red square.", spoken)

	require.NotNil(t, reply.Audio)
	assert.NotZero(t, reply.Audio.Len())
	assert.Equal(t, int64(0), reply.Audio.Offset())
}

func TestAsk_WithoutCaption(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))

	mic := &brokenMic{}
	_, err := f.conversation.Ask(context.Background(), f.session.ID, mic)
	assert.ErrorIs(t, err, entities.ErrNoCaption)
	assert.Zero(t, mic.reads, "microphone should not be opened without a caption")
	assert.Empty(t, f.tts.texts)
}

func TestAsk_UnrecognizedSpeechHasNoAudio(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))
	ctx := context.Background()

	_, err := f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 100), nil)
	require.NoError(t, err)
	f.tts.texts = nil

	reply, err := f.conversation.Ask(ctx, f.session.ID, microphone.NewRecorded(make([]byte, 16000), linear16, 0))
	require.NoError(t, err)

	assert.Equal(t, entities.RecognitionUnrecognized, reply.Recognition.State)
	assert.Nil(t, reply.Audio)
	assert.Empty(t, reply.ResponseText)
	assert.Empty(t, f.tts.texts)
}

func TestAsk_KeepsUploadFinishedWhileListening(t *testing.T) {
	logger := zaptest.NewLogger(t)
	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))
	ctx := context.Background()

	_, err := f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 100), nil)
	require.NoError(t, err)

	mic := &interruptingMic{
		Microphone: microphone.NewRecorded(speech(), linear16, 0),
		interrupt: func() {
			_, err := f.descriptions.Describe(ctx, f.session.ID, "wide.png", redRect(t, 200, 100), nil)
			require.NoError(t, err)
		},
	}
	reply, err := f.conversation.Ask(ctx, f.session.ID, mic)
	require.NoError(t, err)

	// the answer uses the caption current when the query started
	assert.Equal(t, "a red square", reply.Caption.Text)

	stored, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	caption, err := stored.CurrentCaption()
	require.NoError(t, err)
	assert.Equal(t, "a red wide rectangle", caption.Text)
	require.NotNil(t, stored.Image)
	assert.Equal(t, "wide.png", stored.Image.Filename)
	assert.True(t, caption.Describes(stored.Image))
}

func TestDescribe_NewerUploadKeepsItsCaption(t *testing.T) {
	logger := zaptest.NewLogger(t)
	capt := &interruptingCaptioner{ImageCaptioner: captioner.NewMockCaptioner(logger)}
	f := newFixture(t, capt, stt.NewMockSpeechToText("", logger))
	ctx := context.Background()

	capt.interrupt = func() {
		_, err := f.descriptions.Describe(ctx, f.session.ID, "wide.png", redRect(t, 200, 100), nil)
		require.NoError(t, err)
	}

	desc, err := f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 100), nil)
	require.NoError(t, err)
	assert.Equal(t, "a red square", desc.Caption.Text)

	stored, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	caption, err := stored.CurrentCaption()
	require.NoError(t, err)
	assert.Equal(t, "a red wide rectangle", caption.Text)
	assert.Equal(t, "wide.png", stored.Image.Filename)
}

func TestSpokenLanguageIsConsistent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	french := repositories.AudioConfig{SampleRate: 16000, Encoding: "LINEAR16", Language: "fr-FR"}

	f := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))
	_, err := f.descriptions.Describe(ctx, f.session.ID, "red.png", redPNG(t, 100), nil)
	require.NoError(t, err)
	_, err = f.conversation.Ask(ctx, f.session.ID, microphone.NewRecorded(speech(), french, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "en-US"}, f.tts.languages)

	configured := newFixture(t, captioner.NewMockCaptioner(logger), stt.NewMockSpeechToText("what is this", logger))
	configured.descriptions.voice.Language = "id-ID"
	_, err = configured.descriptions.Describe(ctx, configured.session.ID, "red.png", redPNG(t, 100), nil)
	require.NoError(t, err)
	_, err = configured.conversation.Ask(ctx, configured.session.ID, microphone.NewRecorded(speech(), french, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"id-ID", "id-ID"}, configured.tts.languages)
}

func TestComposeReply(t *testing.T) {
	assert.Equal(t,
		"You asked: is it red. The description of the image is: a red square.",
		ComposeReply("is it red", "a red square"))
}
