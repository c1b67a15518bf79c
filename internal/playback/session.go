package playback

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/compose"
	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
	"github.com/rviscarra/webrtc-video-wall/internal/source"
)

// session is the state of one playback run. It is only touched by the
// worker goroutine once the run has started.
type session struct {
	id       string
	refs     []playlist.MediaReference
	binding  playlist.Binding
	sources  []*source.FrameSource
	tiles    []*raster.Tile
	strategy compose.Strategy
	canvas   *canvas
	interval time.Duration

	// single item mode
	item    int
	current *source.FrameSource
}

func (s *Scheduler) open(refs []playlist.MediaReference) (*session, error) {
	sess := &session{
		id:     newSessionID(),
		canvas: newCanvas(s.cfg.Viewports),
	}

	switch s.cfg.Mode {
	case ModeSingle:
		sess.refs = refs
		sess.tiles = make([]*raster.Tile, 1)
		sess.strategy = compose.Tiling{Selection: compose.Single}
		if !s.openItem(sess) {
			return nil, ErrNoPlayableMedia
		}
		return sess, nil
	case ModeMosaic:
		sess.strategy = compose.Mosaic{Fill: s.cfg.Fill}
	default:
		sess.strategy = compose.Tiling{Selection: compose.Circular}
	}

	if err := s.openSources(sess, refs); err != nil {
		return nil, err
	}
	return sess, nil
}

// openSources opens one FrameSource per unique path. Sources that fail to
// open are dropped together with every playlist entry referencing them.
func (s *Scheduler) openSources(sess *session, refs []playlist.MediaReference) error {
	binding := playlist.Bind(refs)
	failed := map[string]bool{}
	for _, spec := range binding.Sources {
		src, err := source.Open(spec, s.cfg.Open, s.cfg.Sources, s.cfg.Logger)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping source")
			failed[spec] = true
			continue
		}
		sess.sources = append(sess.sources, src)
	}
	if len(sess.sources) == 0 {
		return ErrNoPlayableMedia
	}

	sess.refs = playlist.Filter(refs, failed)
	sess.binding = playlist.Bind(sess.refs)
	sess.tiles = make([]*raster.Tile, len(sess.binding.Slots))
	sess.interval = s.pacing(sess.sources...)
	return nil
}

// pacing is the smallest native interval among srcs, or the default.
func (s *Scheduler) pacing(srcs ...*source.FrameSource) time.Duration {
	var interval time.Duration
	for _, src := range srcs {
		if d, ok := src.NativeInterval(); ok && (interval == 0 || d < interval) {
			interval = d
		}
	}
	if interval == 0 {
		return s.cfg.DefaultInterval
	}
	return interval
}

func (sess *session) sourceIDs() []string {
	if sess.current != nil {
		return []string{sess.current.ID()}
	}
	ids := make([]string, len(sess.sources))
	for i, src := range sess.sources {
		ids[i] = src.ID()
	}
	return ids
}

func (sess *session) close(log zerolog.Logger) {
	for _, src := range sess.sources {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Str("source", src.ID()).Msg("close failed")
		}
	}
	if sess.current != nil {
		if err := sess.current.Close(); err != nil {
			log.Warn().Err(err).Str("source", sess.current.ID()).Msg("close failed")
		}
		sess.current = nil
	}
	sess.sources = nil
	sess.tiles = nil
	sess.canvas.reset()
}
