package rtc

import (
	"image"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pion/webrtc/v2"
	"github.com/pion/webrtc/v2/pkg/media"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/encoders"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

func resizeImage(src *image.RGBA, target image.Point) *image.RGBA {
	if src.Rect.Size() == target {
		return src
	}
	resized := resize.Resize(uint(target.X), uint(target.Y), src, resize.Lanczos3)
	if rgba, ok := resized.(*image.RGBA); ok {
		return rgba
	}
	return raster.FromImage(resized).Image()
}

type sampleWriter interface {
	WriteSample(s media.Sample) error
}

type rtcStreamer struct {
	track   sampleWriter
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
	mu      sync.Mutex
	grabber rdisplay.FrameGrabber
	encoder encoders.Encoder
	size    image.Point
	log     zerolog.Logger
}

func newRTCStreamer(track *webrtc.Track, grabber rdisplay.FrameGrabber, encoder encoders.Encoder, size image.Point, logger zerolog.Logger) videoStreamer {
	return &rtcStreamer{
		track:   track,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		grabber: grabber,
		encoder: encoder,
		size:    size,
		log:     logger,
	}
}

func (s *rtcStreamer) start() {
	s.once.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.startStream()
	})
}

func (s *rtcStreamer) startStream() {
	defer close(s.done)
	s.grabber.Start()
	defer s.grabber.Stop()
	frames := s.grabber.Frames()
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-frames:
			if !ok {
				s.log.Info().Msg("surface feed ended")
				return
			}
			if err := s.stream(frame); err != nil {
				s.log.Error().Err(err).Msg("streamer stopped")
				return
			}
		}
	}
}

func (s *rtcStreamer) stream(frame *image.RGBA) error {
	resized := resizeImage(frame, s.size)
	payload, err := s.encoder.Encode(resized)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return s.track.WriteSample(media.Sample{
		Data:    payload,
		Samples: 1,
	})
}

// close stops the stream and waits until the encoder is no longer in use.
func (s *rtcStreamer) close() {
	close(s.stop)
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	} else {
		s.grabber.Stop()
	}
}
