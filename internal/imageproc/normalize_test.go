package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, w, h int, format imaging.Format, alpha uint8) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: alpha})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func mustDecode(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		maxDim       int
		wantW, wantH int
		wantErr      error
	}{
		{
			name:   "OK small png kept as is",
			data:   testImage(t, 100, 80, imaging.PNG, 255),
			maxDim: 512,
			wantW:  100,
			wantH:  80,
		},
		{
			name:   "OK large jpeg downscaled keeping aspect",
			data:   testImage(t, 1024, 512, imaging.JPEG, 255),
			maxDim: 512,
			wantW:  512,
			wantH:  256,
		},
		{
			name:   "OK downscaling disabled",
			data:   testImage(t, 1024, 512, imaging.PNG, 255),
			maxDim: 0,
			wantW:  1024,
			wantH:  512,
		},
		{
			name:    "empty payload",
			data:    nil,
			maxDim:  512,
			wantErr: model.ErrEmptyImage,
		},
		{
			name:    "gif is not accepted",
			data:    testImage(t, 10, 10, imaging.GIF, 255),
			maxDim:  512,
			wantErr: model.ErrUnsupportedFormat,
		},
		{
			name:    "plain text",
			data:    []byte("definitely not an image"),
			maxDim:  512,
			wantErr: model.ErrUnsupportedFormat,
		},
		{
			name:    "truncated png",
			data:    testImage(t, 50, 50, imaging.PNG, 255)[:40],
			maxDim:  512,
			wantErr: model.ErrCorruptedImage,
		},
		{
			name:    "webp signature with garbage body",
			data:    append([]byte("RIFF\x20\x00\x00\x00WEBPVP8 "), make([]byte, 32)...),
			maxDim:  512,
			wantErr: model.ErrCorruptedImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.data, tt.maxDim)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, model.ErrInvalidInput)
				return
			}

			require.NoError(t, err)
			require.Equal(t, model.PNG, Sniff(out))
			img := mustDecode(t, out)
			require.Equal(t, tt.wantW, img.Bounds().Dx())
			require.Equal(t, tt.wantH, img.Bounds().Dy())
		})
	}
}

func TestNormalize_DropsAlpha(t *testing.T) {
	out, err := Normalize(testImage(t, 20, 20, imaging.PNG, 40), 512)
	require.NoError(t, err)

	img := mustDecode(t, out)
	_, _, _, a := img.At(5, 5).RGBA()
	require.Equal(t, uint32(0xffff), a)
}

func TestDetectResult(t *testing.T) {
	mime, ext, err := DetectResult(testImage(t, 10, 10, imaging.PNG, 255))
	require.NoError(t, err)
	require.Equal(t, model.PNG, mime)
	require.Equal(t, ".png", ext)

	mime, ext, err = DetectResult(testImage(t, 10, 10, imaging.JPEG, 255))
	require.NoError(t, err)
	require.Equal(t, model.JPEG, mime)
	require.Equal(t, ".jpg", ext)

	_, _, err = DetectResult([]byte(`{"error":"Model is loading"}`))
	require.ErrorIs(t, err, model.ErrUpstreamError)

	_, _, err = DetectResult(nil)
	require.ErrorIs(t, err, model.ErrUpstreamError)
}
