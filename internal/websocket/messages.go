package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/internal/pipeline"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client to server
const (
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypePing           MessageType = "ping"
)

// Server to client
const (
	MessageTypeListeningStarted MessageType = "listening_started"
	MessageTypeRecognition      MessageType = "recognition"
	MessageTypeSpeakingStart    MessageType = "speaking_start"
	MessageTypeSpeakingEnd      MessageType = "speaking_end"
	MessageTypeProgress         MessageType = "progress"
	MessageTypePong             MessageType = "pong"
	MessageTypeError            MessageType = "error"
)

// Error codes sent in ErrorMessage.Code
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeBusy           = "busy"
	ErrorCodeNotListening   = "not_listening"
	ErrorCodeNoCaption      = "no_caption"
	ErrorCodeSessionExpired = "session_expired"
	ErrorCodeUpstream       = "upstream_failed"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// ListeningStartMessage opens an utterance; binary frames follow until listening_end
type ListeningStartMessage struct {
	BaseMessage
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language,omitempty"`
}

// ListeningEndMessage marks the end of the utterance
type ListeningEndMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ListeningStartedMessage acknowledges listening_start
type ListeningStartedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// RecognitionMessage reports how the utterance was recognized
type RecognitionMessage struct {
	BaseMessage
	State      entities.RecognitionState `json:"state"`
	Text       string                    `json:"text,omitempty"`
	Notice     string                    `json:"notice,omitempty"`
	FrameCount int                       `json:"frame_count"`
	DurationMs int64                     `json:"duration_ms"`
}

// SpeakingStartMessage precedes the binary MP3 chunks of a reply
type SpeakingStartMessage struct {
	BaseMessage
	Text     string `json:"text"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// SpeakingEndMessage follows the last binary chunk of a reply
type SpeakingEndMessage struct {
	BaseMessage
}

// ProgressMessage forwards pipeline events
type ProgressMessage struct {
	BaseMessage
	Event pipeline.Event `json:"event"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// validEncodings are the encodings the recognizers accept
var validEncodings = map[string]bool{
	"LINEAR16":  true,
	"WAV":       true,
	"FLAC":      true,
	"MULAW":     true,
	"AMR":       true,
	"AMR_WB":    true,
	"OGG_OPUS":  true,
	"WEBM_OPUS": true,

	"SPEEX_WITH_HEADER_BYTE": true,
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listening start message: %w", err)
		}
		if err := v.validateListeningStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		return &ListeningEndMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateListeningStart normalizes the encoding and checks the sample rate
func (v *MessageValidator) validateListeningStart(msg *ListeningStartMessage) error {
	msg.Encoding = strings.ToUpper(strings.TrimSpace(msg.Encoding))
	if msg.Encoding == "" {
		return fmt.Errorf("encoding is required")
	}
	if !validEncodings[msg.Encoding] {
		return fmt.Errorf("encoding must be one of: LINEAR16, WAV, FLAC, MULAW, AMR, AMR_WB, OGG_OPUS, WEBM_OPUS, SPEEX_WITH_HEADER_BYTE")
	}
	if msg.SampleRate < 8000 || msg.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{BaseMessage: newBase(MessageTypePong), Data: data}
}

// CreateRecognitionMessage reports a finished recognition
func CreateRecognitionMessage(r *entities.Recognition) *RecognitionMessage {
	return &RecognitionMessage{
		BaseMessage: newBase(MessageTypeRecognition),
		State:       r.State,
		Text:        r.Text,
		Notice:      r.Notice,
		FrameCount:  r.FrameCount,
		DurationMs:  r.Duration().Milliseconds(),
	}
}

// CreateProgressMessage wraps a pipeline event
func CreateProgressMessage(event pipeline.Event) *ProgressMessage {
	return &ProgressMessage{BaseMessage: newBase(MessageTypeProgress), Event: event}
}
