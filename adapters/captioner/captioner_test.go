package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lensa/domain/entities"
)

func uploadedPNG(t *testing.T, w, h int, fill func(x, y int) color.Color) *entities.UploadedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	uploaded, err := entities.DecodeUploadedImage("test.png", buf.Bytes())
	require.NoError(t, err)
	return uploaded
}

func solid(c color.Color) func(x, y int) color.Color {
	return func(int, int) color.Color { return c }
}

func TestMockCaptioner(t *testing.T) {
	m := NewMockCaptioner(zaptest.NewLogger(t))
	red := color.RGBA{R: 255, A: 255}

	tests := []struct {
		name string
		img  *entities.UploadedImage
		want string
	}{
		{"solid red square", uploadedPNG(t, 100, 100, solid(red)), "a red square"},
		{"wide orange", uploadedPNG(t, 200, 50, solid(color.RGBA{R: 250, G: 140, A: 255})), "an orange wide rectangle"},
		{"tall blue", uploadedPNG(t, 40, 120, solid(color.RGBA{B: 255, A: 255})), "a blue tall rectangle"},
		{"mostly white", uploadedPNG(t, 100, 100, func(x, y int) color.Color {
			if x < 30 {
				return red
			}
			return color.White
		}), "a square picture that is mostly white"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caption, err := m.GenerateCaption(context.Background(), tt.img)
			require.NoError(t, err)
			assert.Equal(t, tt.want, caption)
		})
	}

	_, err := m.GenerateCaption(context.Background(), &entities.UploadedImage{})
	assert.ErrorIs(t, err, entities.ErrImageDecode)
	assert.Equal(t, mockModel, m.Model())
}

func TestValidateGeminiConfig(t *testing.T) {
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 1.5}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", MaxOutputTokens: -1}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", TimeoutSeconds: -1}))
	assert.NoError(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k"}))
}

func TestGeminiCaptioner_GenerateCaption(t *testing.T) {
	img := uploadedPNG(t, 10, 10, solid(color.RGBA{R: 255, A: 255}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "image/png")

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":" a red square \n"}]}}]}`)
	}))
	defer server.Close()

	g, err := NewGeminiCaptioner(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	caption, err := g.GenerateCaption(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "a red square", caption)
	assert.Equal(t, defaultGeminiModel, g.Model())
}

func TestGeminiCaptioner_EmptyAnswer(t *testing.T) {
	img := uploadedPNG(t, 10, 10, solid(color.White))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]}}]}`)
	}))
	defer server.Close()

	g, err := NewGeminiCaptioner(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = g.GenerateCaption(context.Background(), img)
	assert.ErrorIs(t, err, entities.ErrEmptyCaption)
}

func TestOpenAICaptioner_GenerateCaption(t *testing.T) {
	img := uploadedPNG(t, 10, 10, solid(color.RGBA{G: 255, A: 255}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"a green square"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	o, err := NewOpenAICaptioner(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	caption, err := o.GenerateCaption(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "a green square", caption)
}

func TestOpenAICaptioner_Failure(t *testing.T) {
	img := uploadedPNG(t, 10, 10, solid(color.White))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"upstream","type":"server_error"}}`)
	}))
	defer server.Close()

	o, err := NewOpenAICaptioner(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = o.GenerateCaption(context.Background(), img)
	assert.Error(t, err)

	_, err = NewOpenAICaptioner(OpenAIConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// Integration test - only runs if GEMINI_API_KEY is set
func TestGeminiCaptioner_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test - set GEMINI_API_KEY environment variable")
	}

	g, err := NewGeminiCaptioner(context.Background(), GeminiConfig{APIKey: apiKey}, zaptest.NewLogger(t))
	require.NoError(t, err)

	caption, err := g.GenerateCaption(context.Background(), uploadedPNG(t, 100, 100, solid(color.RGBA{R: 255, A: 255})))
	require.NoError(t, err)
	assert.NotEmpty(t, caption)
	t.Logf("caption: %s", caption)
}
