package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"

	"golang.org/x/image/draw"
)

const (
	ThumbnailCommandName = "ThumbnailCommand"

	EncodingJPEG = "jpeg"
	EncodingPNG  = "png"

	DefaultThumbnailWidth   = 250
	DefaultThumbnailHeight  = 250
	DefaultThumbnailQuality = 90
)

// ThumbnailParams describes the derived artifact. The source is stretched to
// exactly Width x Height; aspect ratio is not preserved.
type ThumbnailParams struct {
	Width    int
	Height   int
	Encoding string
	Quality  int // 1..100, ignored for png
}

// DefaultThumbnailParams returns the 250x250 jpeg thumbnail used by the gallery
func DefaultThumbnailParams() ThumbnailParams {
	return ThumbnailParams{
		Width:    DefaultThumbnailWidth,
		Height:   DefaultThumbnailHeight,
		Encoding: EncodingJPEG,
		Quality:  DefaultThumbnailQuality,
	}
}

// Validate checks the parameters and returns a descriptive error for the first violation
func (p ThumbnailParams) Validate() error {
	if p.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", p.Width)
	}
	if p.Height <= 0 {
		return fmt.Errorf("height must be positive, got %d", p.Height)
	}
	switch p.Encoding {
	case EncodingJPEG, EncodingPNG:
	default:
		return fmt.Errorf("unsupported encoding %q, expected %q or %q", p.Encoding, EncodingJPEG, EncodingPNG)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", p.Quality)
	}
	return nil
}

// MimeType returns the MIME type of the encoded thumbnail
func (p ThumbnailParams) MimeType() string {
	if p.Encoding == EncodingPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Key identifies the parameter set, e.g. "250x250:jpeg:90"
func (p ThumbnailParams) Key() string {
	return fmt.Sprintf("%dx%d:%s:%d", p.Width, p.Height, p.Encoding, p.Quality)
}

// NewThumbnailParamsFromMap creates ThumbnailParams from a generic map.
// Missing keys fall back to DefaultThumbnailParams.
func NewThumbnailParamsFromMap(params map[string]any) (*ThumbnailParams, error) {
	if err := validateKnownParams(params, []string{"width", "height", "encoding", "quality"}); err != nil {
		return nil, err
	}

	defaults := DefaultThumbnailParams()
	result := &ThumbnailParams{
		Width:    getIntParam(params, "width", defaults.Width),
		Height:   getIntParam(params, "height", defaults.Height),
		Encoding: getStringParam(params, "encoding", defaults.Encoding),
		Quality:  getIntParam(params, "quality", defaults.Quality),
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// ThumbnailCommand derives a fixed-size thumbnail from an image. It never
// modifies its input and keeps no state between calls.
type ThumbnailCommand struct {
	name   string
	params *ThumbnailParams
}

// NewThumbnailCommand creates a new thumbnail command from configuration parameters
func NewThumbnailCommand(params map[string]any) (Command, error) {
	typedParams, err := NewThumbnailParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ThumbnailCommand{
		name:   ThumbnailCommandName,
		params: typedParams,
	}, nil
}

// NewThumbnailCommandWithParams creates a new thumbnail command from concrete typed parameters
func NewThumbnailCommandWithParams(params ThumbnailParams) (*ThumbnailCommand, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &ThumbnailCommand{
		name:   ThumbnailCommandName,
		params: &params,
	}, nil
}

// Name returns the command name
func (c *ThumbnailCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *ThumbnailCommand) GetParams() ThumbnailParams {
	return *c.params
}

// Execute decodes the image, stretches it into the target box and re-encodes it.
// Input that is not a decodable image fails with *DecodeError.
func (c *ThumbnailCommand) Execute(imageData []byte) ([]byte, error) {
	return Derive(imageData, *c.params)
}

// Derive produces the thumbnail for imageData under params.
func Derive(imageData []byte, params ThumbnailParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thumbnail parameters: %w", err)
	}

	slog.Debug("ThumbnailCommand: decoding image",
		"input_size_bytes", len(imageData))

	src, format, err := decodeImage(imageData, params.Width, params.Height)
	if err != nil {
		slog.Debug("ThumbnailCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := src.Bounds()
	slog.Debug("ThumbnailCommand: scaling image",
		"format", format,
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", params.Width,
		"target_height", params.Height)

	dst := newCanvas(params.Width, params.Height)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	out, err := encode(dst, params)
	if err != nil {
		slog.Error("ThumbnailCommand: failed to encode thumbnail", "error", err)
		return nil, err
	}

	slog.Debug("ThumbnailCommand: thumbnail complete",
		"output_size_bytes", len(out))
	return out, nil
}

func encode(img image.Image, params ThumbnailParams) ([]byte, error) {
	var buf bytes.Buffer
	switch params.Encoding {
	case EncodingPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png thumbnail: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: params.Quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg thumbnail: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register(ThumbnailCommandName, NewThumbnailCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", ThumbnailCommandName, err))
	}
}
