package repositories

import (
	"context"

	"github.com/satriahrh/lensa/domain/entities"
)

// ImageCaptioner abstracts pretrained image captioning models
type ImageCaptioner interface {
	// GenerateCaption returns a short natural-language description of the image
	GenerateCaption(ctx context.Context, img *entities.UploadedImage) (string, error)
	// Model names the model behind the captioner
	Model() string
}
