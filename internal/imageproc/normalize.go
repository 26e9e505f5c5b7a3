// Package imageproc prepares uploaded images for the inference service and checks what comes back
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/webp" // регистрирует webp-декодер для image.Decode
)

// Sniff returns the MIME type detected from the payload itself, ignoring what the client claimed.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// Normalize decodes a JPEG/PNG/WebP payload, drops alpha, fits it into maxDim x maxDim
// and re-encodes it as PNG. maxDim <= 0 disables downscaling.
func Normalize(data []byte, maxDim int) ([]byte, error) {
	if len(data) == 0 {
		return nil, model.ErrEmptyImage
	}

	mime := Sniff(data)
	if !model.InImageTypeMap[mime] {
		return nil, fmt.Errorf("%w (detected %s)", model.ErrUnsupportedFormat, mime)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptedImage, err)
	}

	rgb := toRGB(img)
	if maxDim > 0 && (rgb.Bounds().Dx() > maxDim || rgb.Bounds().Dy() > maxDim) {
		rgb = imaging.Fit(rgb, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rgb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}
	return buf.Bytes(), nil
}

// toRGB копирует пиксели в NRGBA и выставляет полную непрозрачность
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// DetectResult validates an inference response body and returns its MIME type and file extension.
func DetectResult(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: empty result image", model.ErrUpstreamError)
	}
	mime := Sniff(data)
	ext, ok := model.GetImageFileExt[mime]
	if !ok {
		return "", "", fmt.Errorf("%w: response is not an image (%s)", model.ErrUpstreamError, mime)
	}
	return mime, ext, nil
}
