package imageops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"  // register bmp decoder
	_ "golang.org/x/image/tiff" // register tiff decoder
	_ "golang.org/x/image/webp" // register webp decoder

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/Placement/pkg/geometry"
	"github.com/gen2brain/jpegli"
)

// Format is an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
	FormatWebP Format = "webp"
)

// EncodeQuality is used for the lossy encoders.
const EncodeQuality = 95

// ParseFormat maps a user supplied format name to a Format. An empty name is PNG.
func ParseFormat(name string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// MimeType returns the content type written for f.
func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Decode decodes png, jpeg, gif, bmp, tiff or webp bytes. EXIF orientation is
// applied so the pixels match what a viewer shows.
func Decode(ctx context.Context, data []byte) (image.Image, string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("decoding %s image: %w", format, err)
	}
	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// DecodeNRGBA decodes data and converts the result to NRGBA.
func DecodeNRGBA(ctx context.Context, data []byte) (*image.NRGBA, error) {
	img, _, err := Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return ToNRGBA(img), nil
}

// Metadata reads the dimensions of encoded image bytes without decoding pixels.
func Metadata(data []byte) (geometry.Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geometry.Dimensions{}, "", fmt.Errorf("reading image metadata: %w", err)
	}
	return geometry.Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// Encode encodes img in format f. JPEG keeps full chroma resolution (4:4:4).
func Encode(ctx context.Context, img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	switch f {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = enc.Encode(&buf, img)
	case FormatJPEG:
		err = jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
			Quality:           EncodeQuality,
			ChromaSubsampling: image.YCbCrSubsampleRatio444,
		})
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: EncodeQuality})
	default:
		return nil, fmt.Errorf("unsupported format: %s", f)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s image: %w", f, err)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
