package entities

import (
	"errors"
	"strings"
	"time"
)

var ErrEmptyCaption = errors.New("caption model returned no text")

// Caption is the text produced from one uploaded image
type Caption struct {
	Text          string    `json:"text"`
	ImageDigest   string    `json:"image_digest"`
	ImageFilename string    `json:"image_filename"`
	Model         string    `json:"model,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// NewCaption pairs a caption text with the image it describes
func NewCaption(text string, img *UploadedImage, model string) (*Caption, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCaption
	}

	caption := &Caption{
		Text:        text,
		Model:       model,
		GeneratedAt: time.Now(),
	}
	if img != nil {
		caption.ImageDigest = img.Digest
		caption.ImageFilename = img.Filename
	}
	return caption, nil
}

// Describes reports whether the caption was produced from the given image
func (c *Caption) Describes(img *UploadedImage) bool {
	return img != nil && c.ImageDigest != "" && c.ImageDigest == img.Digest
}
