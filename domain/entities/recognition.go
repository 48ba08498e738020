package entities

import (
	"fmt"
	"time"
)

// RecognitionState is the lifecycle state of one utterance capture
type RecognitionState string

const (
	RecognitionIdle         RecognitionState = "IDLE"
	RecognitionListening    RecognitionState = "LISTENING"
	RecognitionTranscribed  RecognitionState = "TRANSCRIBED"
	RecognitionUnrecognized RecognitionState = "UNRECOGNIZED"
	RecognitionServiceError RecognitionState = "SERVICE_ERROR"
)

const (
	NoticeUnrecognized = "Sorry, I could not understand the audio."
	NoticeServiceError = "Could not request results from the speech recognition service."
)

// IsTerminal reports whether no further transition is possible
func (s RecognitionState) IsTerminal() bool {
	switch s {
	case RecognitionTranscribed, RecognitionUnrecognized, RecognitionServiceError:
		return true
	}
	return false
}

// Recognition tracks a single utterance from capture to transcription
type Recognition struct {
	State      RecognitionState `json:"state"`
	Text       string           `json:"text,omitempty"`
	Notice     string           `json:"notice,omitempty"`
	Cause      string           `json:"-"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	FrameCount int              `json:"frame_count"`
	AudioBytes int              `json:"audio_bytes"`
}

// NewRecognition returns a recognition in the IDLE state
func NewRecognition() *Recognition {
	return &Recognition{State: RecognitionIdle}
}

// Transition moves the recognition to next, rejecting moves the state machine does not allow
func (r *Recognition) Transition(next RecognitionState) error {
	allowed := false
	switch r.State {
	case RecognitionIdle:
		allowed = next == RecognitionListening
	case RecognitionListening:
		allowed = next.IsTerminal()
	}
	if !allowed {
		return fmt.Errorf("invalid recognition transition from %s to %s", r.State, next)
	}

	now := time.Now()
	if next == RecognitionListening {
		r.StartedAt = now
	} else {
		r.FinishedAt = &now
	}
	r.State = next
	return nil
}

// Transcribed finishes the recognition with the recognized text
func (r *Recognition) Transcribed(text string) error {
	if err := r.Transition(RecognitionTranscribed); err != nil {
		return err
	}
	r.Text = text
	return nil
}

// Unrecognized finishes the recognition because the audio held no recognizable speech
func (r *Recognition) Unrecognized(cause error) error {
	if err := r.Transition(RecognitionUnrecognized); err != nil {
		return err
	}
	r.Notice = NoticeUnrecognized
	if cause != nil {
		r.Cause = cause.Error()
	}
	return nil
}

// ServiceFailed finishes the recognition because the transcription service failed
func (r *Recognition) ServiceFailed(cause error) error {
	if err := r.Transition(RecognitionServiceError); err != nil {
		return err
	}
	r.Notice = NoticeServiceError
	if cause != nil {
		r.Cause = cause.Error()
	}
	return nil
}

// Transcript returns the recognized text; the second value is false unless TRANSCRIBED
func (r *Recognition) Transcript() (string, bool) {
	if r.State != RecognitionTranscribed {
		return "", false
	}
	return r.Text, true
}

// Duration is the listening time, zero until the recognition finished
func (r *Recognition) Duration() time.Duration {
	if r.FinishedAt == nil || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
