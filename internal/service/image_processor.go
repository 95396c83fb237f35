package service

import (
	"fmt"
	"strings"

	"github.com/h2non/bimg"
)

// maxRelayWidth caps the resize the relay will perform on request.
const maxRelayWidth = 2048

// ImageTransform describes the optional changes the relay applies to an
// upstream image before serving it. The zero value means "serve as is".
type ImageTransform struct {
	// Width resizes to this many pixels wide, keeping aspect ratio. Images
	// narrower than Width are never enlarged.
	Width int
	// Background is a hex color flattened under transparent pixels.
	Background string
}

// IsZero reports whether t leaves the image untouched.
func (t ImageTransform) IsZero() bool {
	return t.Width <= 0 && t.Background == ""
}

// Validate rejects transforms the relay won't perform.
func (t ImageTransform) Validate() error {
	if t.Width < 0 || t.Width > maxRelayWidth {
		return fmt.Errorf("width must be between 1 and %d", maxRelayWidth)
	}
	if t.Background != "" {
		if _, _, _, err := parseHexColor(t.Background); err != nil {
			return err
		}
	}
	return nil
}

// cacheKey distinguishes transformed variants of the same upstream URL.
func (t ImageTransform) cacheKey() string {
	return fmt.Sprintf("w=%d&bg=%s", t.Width, strings.ToLower(strings.TrimPrefix(t.Background, "#")))
}

// ProcessImage applies t to raw image bytes using bimg (libvips bindings).
// bimg.Options is a struct with many fields; only the ones set are applied.
func ProcessImage(imageData []byte, t ImageTransform) ([]byte, error) {
	if t.IsZero() {
		return imageData, nil
	}

	opts := bimg.Options{
		Interpretation: bimg.InterpretationSRGB,
	}

	if t.Width > 0 {
		size, err := bimg.NewImage(imageData).Size()
		if err != nil {
			return nil, fmt.Errorf("reading image size: %w", err)
		}
		if size.Width > t.Width {
			opts.Width = t.Width
		}
	}

	if t.Background != "" {
		r, g, b, err := parseHexColor(t.Background)
		if err != nil {
			return nil, err
		}
		opts.Background = bimg.Color{R: r, G: g, B: b}
	}

	processed, err := bimg.NewImage(imageData).Process(opts)
	if err != nil {
		return nil, fmt.Errorf("processing image: %w", err)
	}
	return processed, nil
}

// parseHexColor converts a hex color string (with or without #) to RGB values.
func parseHexColor(hex string) (uint8, uint8, uint8, error) {
	hex = strings.TrimPrefix(hex, "#")

	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color: %q (expected 6 characters)", hex)
	}

	var r, g, b uint8
	_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing hex color %q: %w", hex, err)
	}

	return r, g, b, nil
}
