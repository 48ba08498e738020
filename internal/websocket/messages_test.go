package websocket

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/internal/pipeline"
)

func TestMessageValidator_ValidateListeningStart(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid listening start",
			message: `{"type": "listening_start", "encoding": "LINEAR16", "sample_rate": 16000, "language": "en-US"}`,
			wantErr: false,
		},
		{
			name:    "lower case encoding",
			message: `{"type": "listening_start", "encoding": "webm_opus", "sample_rate": 48000}`,
			wantErr: false,
		},
		{
			name:    "missing encoding",
			message: `{"type": "listening_start", "sample_rate": 16000}`,
			wantErr: true,
		},
		{
			name:    "invalid sample rate",
			message: `{"type": "listening_start", "encoding": "LINEAR16", "sample_rate": 100000}`,
			wantErr: true,
		},
		{
			name:    "invalid encoding",
			message: `{"type": "listening_start", "encoding": "mp3", "sample_rate": 16000}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_NormalizesEncoding(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "listening_start", "encoding": " ogg_opus ", "sample_rate": 48000}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}

	msg, ok := result.(*ListeningStartMessage)
	if !ok {
		t.Fatalf("Expected *ListeningStartMessage, got %T", result)
	}
	if msg.Encoding != "OGG_OPUS" {
		t.Errorf("Expected encoding 'OGG_OPUS', got '%s'", msg.Encoding)
	}
}

func TestMessageValidator_ValidateListeningEnd(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "listening_end"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if _, ok := result.(*ListeningEndMessage); !ok {
		t.Errorf("Expected *ListeningEndMessage, got %T", result)
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "ping",
		"data": "test-ping"
	}`

	result, err := validator.ValidateMessage([]byte(message))
	if err != nil {
		t.Errorf("ValidateMessage() error = %v", err)
	}

	pingMsg, ok := result.(*PingMessage)
	if !ok {
		t.Fatalf("Expected *PingMessage, got %T", result)
	}

	if pingMsg.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingMsg.Data)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	errorMsg := CreateErrorMessage(ErrorCodeNoCaption, "Test error message", "Test error details")

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != ErrorCodeNoCaption {
		t.Errorf("Expected code %s, got %s", ErrorCodeNoCaption, errorMsg.Code)
	}
	if errorMsg.Details != "Test error details" {
		t.Errorf("Expected details, got %s", errorMsg.Details)
	}

	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > 2*time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreatePongMessage(t *testing.T) {
	pongMsg := CreatePongMessage("test-pong-data")

	if pongMsg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, pongMsg.Type)
	}
	if pongMsg.Data != "test-pong-data" {
		t.Errorf("Expected data test-pong-data, got %s", pongMsg.Data)
	}
}

func TestCreateRecognitionMessage(t *testing.T) {
	recognition := entities.NewRecognition()
	recognition.Transition(entities.RecognitionListening)
	recognition.Unrecognized(nil)

	msg := CreateRecognitionMessage(recognition)

	if msg.Type != MessageTypeRecognition {
		t.Errorf("Expected type %s, got %s", MessageTypeRecognition, msg.Type)
	}
	if msg.State != entities.RecognitionUnrecognized {
		t.Errorf("Expected state UNRECOGNIZED, got %s", msg.State)
	}
	if msg.Notice != entities.NoticeUnrecognized {
		t.Errorf("Expected notice %q, got %q", entities.NoticeUnrecognized, msg.Notice)
	}
}

func TestServerMessageShape(t *testing.T) {
	tests := []struct {
		name    string
		message interface{}
		want    MessageType
	}{
		{name: "error", message: CreateErrorMessage(ErrorCodeBusy, "busy", ""), want: MessageTypeError},
		{name: "pong", message: CreatePongMessage(""), want: MessageTypePong},
		{name: "progress", message: CreateProgressMessage(pipeline.Event{Type: pipeline.EventStageStarted, Stage: "caption"}), want: MessageTypeProgress},
		{name: "speaking end", message: &SpeakingEndMessage{BaseMessage: newBase(MessageTypeSpeakingEnd)}, want: MessageTypeSpeakingEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.message)
			if err != nil {
				t.Fatalf("Failed to marshal message: %v", err)
			}

			var result map[string]interface{}
			if err := json.Unmarshal(data, &result); err != nil {
				t.Fatalf("Failed to unmarshal message: %v", err)
			}

			if result["type"] != string(tt.want) {
				t.Errorf("Expected type %s, got %v", tt.want, result["type"])
			}
			if _, exists := result["timestamp"]; !exists {
				t.Errorf("Message missing 'timestamp' field")
			}
		})
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	invalidMessages := []string{
		`{invalid json}`,
		`{"type": "listening_start", "encoding":}`,
		``,
		`null`,
		`{"type": }`,
	}

	for i, msg := range invalidMessages {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(msg))
			if err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	_, err := validator.ValidateMessage([]byte(`{"type": "audio_chunk", "data": "some data"}`))
	if err == nil {
		t.Errorf("Expected error for unsupported message type, got nil")
	}
}
