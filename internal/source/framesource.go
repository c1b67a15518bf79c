// Package source wraps a decoder into an endlessly looping frame source.
package source

import (
	"image"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/decoders"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// ErrSourceUnavailable marks a source that could not be opened.
var ErrSourceUnavailable = errors.New("source unavailable")

// openError keeps the decoder failure as its cause while matching
// ErrSourceUnavailable.
type openError struct {
	spec string
	err  error
}

func (e *openError) Error() string {
	return e.spec + ": " + ErrSourceUnavailable.Error() + ": " + e.err.Error()
}

func (e *openError) Is(target error) bool { return target == ErrSourceUnavailable }

func (e *openError) Unwrap() error { return e.err }

func (e *openError) Cause() error { return e.err }

// Opener opens a decoder for a media spec; decoders.Open in production.
type Opener func(spec string) (decoders.Decoder, error)

// Options tune every source opened by a scheduler
type Options struct {
	// ScaleHeight resizes each frame to this height keeping its aspect.
	// Zero keeps the native size.
	ScaleHeight int
}

// Frame is one pulled tile. Rewound is set on the first frame after the
// stream wrapped around to its start.
type Frame struct {
	Tile    *raster.Tile
	Rewound bool
}

// FrameSource owns one decoder; one instance exists per unique media path.
type FrameSource struct {
	id       string
	decoder  decoders.Decoder
	interval time.Duration
	opts     Options
	log      zerolog.Logger
}

// Open opens spec with open. Failures wrap ErrSourceUnavailable.
func Open(spec string, open Opener, opts Options, logger zerolog.Logger) (*FrameSource, error) {
	if open == nil {
		open = decoders.Open
	}
	dec, err := open(spec)
	if err != nil {
		return nil, &openError{spec: spec, err: err}
	}

	s := &FrameSource{
		id:      spec,
		decoder: dec,
		opts:    opts,
		log:     logger.With().Str("source", spec).Logger(),
	}
	if fps, ok := dec.FrameRate(); ok && fps > 0 {
		s.interval = time.Duration(float64(time.Second) / fps)
	} else {
		s.interval = s.probeInterval()
	}
	s.log.Debug().Dur("interval", s.interval).Msg("source opened")
	return s, nil
}

// probeInterval reads the frame interval from the container when the
// decoder doesn't report a rate.
func (s *FrameSource) probeInterval() time.Duration {
	tag, path := decoders.Split(s.id)
	if tag != decoders.FileTag || !decoders.IsMP4(path) {
		return 0
	}
	info, err := decoders.Probe(path)
	if err != nil {
		s.log.Debug().Err(err).Msg("can't probe frame interval")
		return 0
	}
	return info.Interval
}

// ID is the media spec the source was opened with.
func (s *FrameSource) ID() string {
	return s.id
}

// NativeInterval is the decoder reported frame interval, if any.
func (s *FrameSource) NativeInterval() (time.Duration, bool) {
	return s.interval, s.interval > 0
}

// NextFrame pulls the next frame. End of stream is never returned: the
// decoder is rewound and the first frame of the next cycle is returned
// with Rewound set.
func (s *FrameSource) NextFrame() (Frame, error) {
	rewound := false
	tile, err := s.decoder.Next()
	if errors.Is(err, decoders.ErrEndOfStream) {
		if err := s.decoder.SeekToStart(); err != nil {
			return Frame{}, errors.Wrapf(err, "rewind %s", s.id)
		}
		s.log.Debug().Msg("end of stream, looping")
		rewound = true
		tile, err = s.decoder.Next()
	}
	if err != nil {
		return Frame{Rewound: rewound}, errors.Wrapf(err, "next frame of %s", s.id)
	}
	if tile == nil {
		return Frame{Rewound: rewound}, errors.Errorf("%s produced an empty frame", s.id)
	}
	return Frame{Tile: s.scale(tile), Rewound: rewound}, nil
}

func (s *FrameSource) scale(tile *raster.Tile) *raster.Tile {
	h := s.opts.ScaleHeight
	if h <= 0 || tile.Height() == h || tile.Height() == 0 {
		return tile
	}
	// width 0 keeps the aspect ratio
	resized := resize.Resize(0, uint(h), tile.Image(), resize.Bilinear)
	if rgba, ok := resized.(*image.RGBA); ok {
		return raster.Wrap(rgba)
	}
	return raster.FromImage(resized)
}

// Close releases the decoder.
func (s *FrameSource) Close() error {
	return s.decoder.Close()
}
