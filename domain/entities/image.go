package entities

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyImage             = errors.New("image is empty")
	ErrUnsupportedImageFormat = errors.New("unsupported image format, expected png, jpg or jpeg")
	ErrImageDecode            = errors.New("image could not be decoded")
)

// supportedImageExtensions maps accepted upload extensions to their content type
var supportedImageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// UploadedImage is an image received from the user, kept for the lifetime of the session
type UploadedImage struct {
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Format      string      `json:"format"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Digest      string      `json:"digest"`
	Data        []byte      `json:"-"`
	Pixels      image.Image `json:"-"`
}

// DecodeUploadedImage validates the file extension and decodes the pixel buffer
func DecodeUploadedImage(filename string, data []byte) (*UploadedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := supportedImageExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImageFormat, ext)
	}

	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	// The decoder sniffs the payload, so a .png holding JPEG bytes is still served with the right type
	if format == "png" || format == "jpeg" {
		contentType = "image/" + format
	}

	sum := sha256.Sum256(data)
	bounds := pixels.Bounds()

	return &UploadedImage{
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Format:      format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Digest:      hex.EncodeToString(sum[:]),
		Data:        data,
		Pixels:      pixels,
	}, nil
}
