package decoders

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// PatternTag selects the synthetic test source.
const PatternTag = "pattern"

const defaultPatternFrames = 250

// PatternOptions describe a synthetic stream: a solid background with a
// white bar sweeping left to right, one column step per frame.
type PatternOptions struct {
	Width, Height int
	FPS           float64
	Color         color.RGBA
	// Frames is the stream length; the decoder reports end of stream after it.
	Frames int
}

// ParsePattern parses "WxH@fps[#rrggbb][/frames]", e.g. "320x180@25#ff8800/100".
func ParsePattern(path string) (PatternOptions, error) {
	opts := PatternOptions{Color: color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}, Frames: defaultPatternFrames}

	if i := strings.LastIndex(path, "/"); i >= 0 {
		n, err := strconv.Atoi(path[i+1:])
		if err != nil || n <= 0 {
			return opts, errors.Errorf("invalid frame count in %q", path)
		}
		opts.Frames = n
		path = path[:i]
	}
	if i := strings.Index(path, "#"); i >= 0 {
		c, err := ParseHexColor(path[i+1:])
		if err != nil {
			return opts, err
		}
		opts.Color = c
		path = path[:i]
	}

	var fps string
	if i := strings.Index(path, "@"); i >= 0 {
		fps = path[i+1:]
		path = path[:i]
	}
	if _, err := fmt.Sscanf(path, "%dx%d", &opts.Width, &opts.Height); err != nil {
		return opts, errors.Wrapf(err, "invalid pattern size %q", path)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return opts, errors.Errorf("invalid pattern size %dx%d", opts.Width, opts.Height)
	}
	if fps != "" {
		f, err := strconv.ParseFloat(fps, 64)
		if err != nil || f <= 0 {
			return opts, errors.Errorf("invalid pattern rate %q", fps)
		}
		opts.FPS = f
	}
	return opts, nil
}

// ParseHexColor parses "rrggbb" or "rrggbbaa", with or without a leading '#'.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return color.RGBA{}, errors.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid color %q", s)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

type patternDecoder struct {
	opts  PatternOptions
	frame int
}

// NewPatternDecoder returns a synthetic decoder.
func NewPatternDecoder(opts PatternOptions) Decoder {
	return &patternDecoder{opts: opts}
}

func openPattern(path string) (Decoder, error) {
	opts, err := ParsePattern(path)
	if err != nil {
		return nil, err
	}
	return NewPatternDecoder(opts), nil
}

func (d *patternDecoder) Next() (*raster.Tile, error) {
	if d.frame >= d.opts.Frames {
		return nil, ErrEndOfStream
	}
	t := raster.New(d.opts.Width, d.opts.Height)
	if err := t.Fill(t.Bounds(), d.opts.Color); err != nil {
		return nil, err
	}
	x := d.frame % d.opts.Width
	bar := image.Rect(x, 0, min(x+4, d.opts.Width), d.opts.Height)
	if err := t.Fill(bar, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}); err != nil {
		return nil, err
	}
	d.frame++
	return t, nil
}

func (d *patternDecoder) FrameRate() (float64, bool) {
	return d.opts.FPS, d.opts.FPS > 0
}

func (d *patternDecoder) SeekToStart() error {
	d.frame = 0
	return nil
}

func (d *patternDecoder) Close() error {
	return nil
}

func init() {
	Register(PatternTag, openPattern)
}
