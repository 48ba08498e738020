package api

import (
	"time"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/internal/pipeline"
	"github.com/satriahrh/lensa/usecase"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// AudioResponse carries MP3 audio inline
type AudioResponse struct {
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	Data     string `json:"data"` // base64 encoded
}

// ImageResponse describes the uploaded image without its pixels
type ImageResponse struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// SessionResponse is the state of the caller's session
type SessionResponse struct {
	ID        string            `json:"id"`
	ExpiresAt time.Time         `json:"expires_at"`
	Language  string            `json:"language"`
	Image     *ImageResponse    `json:"image,omitempty"`
	Caption   *entities.Caption `json:"caption,omitempty"`
}

// DescribeResponse is returned after an image went through the description pipeline
type DescribeResponse struct {
	Caption string                    `json:"caption"`
	Model   string                    `json:"model,omitempty"`
	Image   ImageResponse             `json:"image"`
	Audio   AudioResponse             `json:"audio"`
	Stages  []pipeline.StageExecution `json:"stages"`
}

// VoiceResponse answers one recorded voice query. Audio is omitted unless the query was transcribed.
type VoiceResponse struct {
	Recognition  *entities.Recognition `json:"recognition"`
	ResponseText string                `json:"response_text,omitempty"`
	Caption      string                `json:"caption"`
	Audio        *AudioResponse        `json:"audio,omitempty"`
}

func newAudioResponse(audio *entities.AudioBuffer) AudioResponse {
	return AudioResponse{
		MimeType: audio.MIMEType(),
		Size:     len(audio.Bytes()),
		Data:     audio.Base64(),
	}
}

func newImageResponse(img *entities.UploadedImage) ImageResponse {
	return ImageResponse{
		Filename: img.Filename,
		Format:   img.Format,
		Width:    img.Width,
		Height:   img.Height,
	}
}

func newSessionResponse(s *entities.Session) SessionResponse {
	resp := SessionResponse{
		ID:        s.ID,
		ExpiresAt: s.ExpiresAt,
		Language:  s.Language,
		Caption:   s.Caption,
	}
	if s.Image != nil {
		img := newImageResponse(s.Image)
		resp.Image = &img
	}
	return resp
}

func newDescribeResponse(d *usecase.Description) DescribeResponse {
	return DescribeResponse{
		Caption: d.Caption.Text,
		Model:   d.Caption.Model,
		Image:   newImageResponse(d.Image),
		Audio:   newAudioResponse(d.Audio),
		Stages:  d.Execution.Stages,
	}
}

func newVoiceResponse(r *usecase.VoiceReply) VoiceResponse {
	resp := VoiceResponse{
		Recognition:  r.Recognition,
		ResponseText: r.ResponseText,
	}
	if r.Caption != nil {
		resp.Caption = r.Caption.Text
	}
	if r.Audio != nil {
		audio := newAudioResponse(r.Audio)
		resp.Audio = &audio
	}
	return resp
}
