package compose

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// ErrHeightMismatch is returned by Combine when tiles differ in height.
var ErrHeightMismatch = errors.New("tiles do not share a height")

// Mosaic concatenates every tile into one ribbon and re-slices the ribbon
// into canvas-wide bands stacked top to bottom.
type Mosaic struct {
	Fill color.RGBA
}

// Compose implements Strategy. On a height mismatch the canvas is left
// unchanged and the error is returned.
func (m Mosaic) Compose(canvas *raster.Buffer, tiles []*raster.Tile) error {
	ribbon, err := Combine(tiles)
	if err != nil {
		return err
	}
	if ribbon == nil {
		return nil
	}
	return PackRibbon(canvas, ribbon, m.Fill)
}

// Combine concatenates the non-nil tiles left to right. It returns nil
// when there is nothing to combine.
func Combine(tiles []*raster.Tile) (*raster.Tile, error) {
	width, height := 0, -1
	for i, t := range tiles {
		if t == nil {
			continue
		}
		if height >= 0 && t.Height() != height {
			return nil, errors.Wrapf(ErrHeightMismatch, "tile %d is %d high, want %d", i, t.Height(), height)
		}
		height = t.Height()
		width += t.Width()
	}
	if height < 0 {
		return nil, nil
	}

	ribbon := raster.New(width, height)
	x := 0
	for _, t := range tiles {
		if t == nil {
			continue
		}
		if err := raster.Copy(ribbon, image.Pt(x, 0), t, t.Bounds()); err != nil {
			return nil, err
		}
		x += t.Width()
	}
	return ribbon, nil
}

// Strips returns how many strips of stripWidth are needed to cover a
// ribbon of ribbonWidth.
func Strips(ribbonWidth, stripWidth int) int {
	if ribbonWidth <= 0 || stripWidth <= 0 {
		return 0
	}
	return (ribbonWidth + stripWidth - 1) / stripWidth
}

// PackRibbon cuts ribbon into canvas-wide strips and stacks strip i at
// y = i*ribbonHeight. The unfilled right part of the last band is painted
// with fill. A band reaching past the canvas bottom is cut to the rows that
// fit, and bands starting below the canvas are dropped.
func PackRibbon(canvas *raster.Buffer, ribbon *raster.Tile, fill color.RGBA) error {
	cw, ch := canvas.Width(), canvas.Height()
	rw, rh := ribbon.Width(), ribbon.Height()
	if rh == 0 {
		return nil
	}

	n := Strips(rw, cw)
	for i := 0; i < n; i++ {
		y := i * rh
		if y >= ch {
			break
		}
		x0 := i * cw
		w := min(cw, rw-x0)
		h := min(rh, ch-y)
		if err := raster.Copy(canvas, image.Pt(0, y), ribbon, image.Rect(x0, 0, x0+w, h)); err != nil {
			return err
		}
		if w < cw {
			if err := canvas.Fill(image.Rect(w, y, cw, y+h), fill); err != nil {
				return err
			}
		}
	}
	return nil
}
