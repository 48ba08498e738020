package captioner

import (
	"context"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

const mockModel = "mock-palette"

// pixels above this share of the image make the colour "solid"
const solidShare = 0.9

type namedColor struct {
	name    string
	r, g, b float64
}

var palette = []namedColor{
	{"black", 0, 0, 0},
	{"white", 255, 255, 255},
	{"gray", 128, 128, 128},
	{"red", 220, 20, 20},
	{"green", 30, 170, 40},
	{"blue", 30, 60, 220},
	{"yellow", 240, 220, 30},
	{"orange", 250, 140, 0},
	{"purple", 130, 40, 160},
	{"pink", 250, 150, 190},
	{"brown", 130, 80, 30},
	{"cyan", 0, 200, 220},
}

// MockCaptioner describes images by their dominant colour and shape, without any model
type MockCaptioner struct {
	logger *zap.Logger
}

var _ repositories.ImageCaptioner = (*MockCaptioner)(nil)

func NewMockCaptioner(logger *zap.Logger) *MockCaptioner {
	return &MockCaptioner{logger: logger}
}

func (m *MockCaptioner) Model() string {
	return mockModel
}

// GenerateCaption implements repositories.ImageCaptioner
func (m *MockCaptioner) GenerateCaption(ctx context.Context, img *entities.UploadedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img == nil || img.Pixels == nil {
		return "", entities.ErrImageDecode
	}

	colour, share := dominantColor(img.Pixels)
	shape := shapeOf(img.Pixels.Bounds())

	var caption string
	if share >= solidShare {
		caption = fmt.Sprintf("%s %s %s", article(colour), colour, shape)
	} else {
		caption = fmt.Sprintf("%s %s picture that is mostly %s", article(shape), shape, colour)
	}

	m.logger.Debug("Mock caption generated",
		zap.String("caption", caption),
		zap.Float64("dominantShare", share))
	return caption, nil
}

// dominantColor samples up to ~64x64 points and returns the most common palette name and its share
func dominantColor(pixels image.Image) (string, float64) {
	bounds := pixels.Bounds()
	stepX := max(1, bounds.Dx()/64)
	stepY := max(1, bounds.Dy()/64)

	counts := make(map[string]int, len(palette))
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := pixels.At(x, y).RGBA()
			counts[nearestColor(float64(r>>8), float64(g>>8), float64(b>>8))]++
			total++
		}
	}
	if total == 0 {
		return "empty", 0
	}

	best, bestCount := "", -1
	// iterate the palette for a stable tie-break
	for _, c := range palette {
		if counts[c.name] > bestCount {
			best, bestCount = c.name, counts[c.name]
		}
	}
	return best, float64(bestCount) / float64(total)
}

func nearestColor(r, g, b float64) string {
	best, bestDist := "", math.MaxFloat64
	for _, c := range palette {
		d := (r-c.r)*(r-c.r) + (g-c.g)*(g-c.g) + (b-c.b)*(b-c.b)
		if d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}

func shapeOf(bounds image.Rectangle) string {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	switch {
	case w == 0 || h == 0:
		return "blank"
	case w/h > 1.1:
		return "wide rectangle"
	case h/w > 1.1:
		return "tall rectangle"
	default:
		return "square"
	}
}

func article(word string) string {
	if word == "" {
		return "a"
	}
	switch word[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	}
	return "a"
}
