package parser

import (
	"bytes"
	"fmt"
	"image"

	// Register decoders for the formats catalogs actually embed.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageMeta describes an extracted image without fully decoding it.
type ImageMeta struct {
	Width  int
	Height int
	Format string
	Ext    string
}

// DecodeMeta probes format and pixel dimensions from raw image bytes.
// Only the header is decoded, so large images stay cheap.
func DecodeMeta(data []byte) (*ImageMeta, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	ext := "." + format
	if format == "jpeg" {
		ext = ".jpg"
	}
	return &ImageMeta{Width: cfg.Width, Height: cfg.Height, Format: format, Ext: ext}, nil
}
