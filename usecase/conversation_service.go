package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

// VoiceReply is the answer to one spoken query. Audio is nil unless the query was transcribed.
type VoiceReply struct {
	Recognition  *entities.Recognition
	Caption      *entities.Caption
	ResponseText string
	Audio        *entities.AudioBuffer
}

// ConversationService answers spoken queries about the last described image
type ConversationService struct {
	recognizer   *Recognizer
	descriptions *DescriptionService
	sessions     repositories.SessionRepository
	logger       *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	recognizer *Recognizer,
	descriptions *DescriptionService,
	sessions repositories.SessionRepository,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		recognizer:   recognizer,
		descriptions: descriptions,
		sessions:     sessions,
		logger:       logger,
	}
}

// ComposeReply combines the spoken query with the cached caption
func ComposeReply(query, caption string) string {
	return fmt.Sprintf("You asked: %s. The description of the image is: %s.", query, caption)
}

// Ask listens to one utterance and answers it with the session's caption
func (s *ConversationService) Ask(ctx context.Context, sessionID string, mic repositories.Microphone) (*VoiceReply, error) {
	return s.AskObserved(ctx, sessionID, mic, nil)
}

// AskObserved is Ask with a callback invoked once recognition has finished, before synthesis
func (s *ConversationService) AskObserved(ctx context.Context, sessionID string, mic repositories.Microphone, onRecognized func(*entities.Recognition)) (*VoiceReply, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	caption, err := session.CurrentCaption()
	if err != nil {
		return nil, err
	}

	recognition, err := s.recognizer.Listen(ctx, mic)
	if err != nil {
		return nil, err
	}
	if onRecognized != nil {
		onRecognized(recognition)
	}

	reply := &VoiceReply{Recognition: recognition, Caption: caption}

	query, ok := recognition.Transcript()
	if !ok {
		s.logger.Info("Voice query not transcribed",
			zap.String("sessionID", sessionID),
			zap.String("state", string(recognition.State)),
			zap.String("cause", recognition.Cause))
		return reply, nil
	}

	reply.ResponseText = ComposeReply(query, caption.Text)

	// same language rule as the caption audio so both clips sound alike
	audio, err := s.descriptions.Synthesize(ctx, reply.ResponseText, session.Language)
	if err != nil {
		return reply, err
	}
	reply.Audio = audio

	// only the activity window is touched; an upload may have landed while listening
	if err := s.sessions.Modify(ctx, sessionID, func(current *entities.Session) error {
		current.UpdateLastActive()
		return nil
	}); err != nil {
		s.logger.Warn("Failed to touch session", zap.String("sessionID", sessionID), zap.Error(err))
	}

	s.logger.Info("Voice query answered",
		zap.String("sessionID", sessionID),
		zap.String("query", query),
		zap.String("response", reply.ResponseText))
	return reply, nil
}
