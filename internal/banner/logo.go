package banner

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	// Logo uploads arrive as whatever the operator had on disk.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// ClampGrid bounds an upload's requested grid to the supported range,
// substituting the defaults for zero values.
func ClampGrid(width, height int) (int, int) {
	if width == 0 {
		width = 24
	}
	if height == 0 {
		height = 12
	}
	width = min(MaxGridWidth, max(MinGridWidth, width))
	height = min(MaxGridHeight, max(MinGridHeight, height))
	return width, height
}

// ProcessLogo decodes a base64 image and downsamples it to a
// width×height ARGB grid for the renderer's text-display banner. The
// grid is row-major, each pixel packed as (a<<24 | r<<16 | g<<8 | b).
func ProcessLogo(imageBase64 string, width, height int) ([]int32, error) {
	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return nil, fmt.Errorf("banner: decode base64: %w", err)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("banner: decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	pixels := make([]int32, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := dst.PixOffset(x, y)
			r, g, b, a := dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3]
			argb := uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
			pixels = append(pixels, int32(argb))
		}
	}
	return pixels, nil
}
