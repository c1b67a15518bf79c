package playback

import (
	"context"
	"time"

	"github.com/rviscarra/webrtc-video-wall/internal/source"
)

// runSingle plays the playlist one item at a time on the whole canvas. An
// item ends when its stream reaches its natural end or when it has played
// longer than its maximum duration; the playlist then wraps around.
func (s *Scheduler) runSingle(ctx context.Context, sess *session) {
	for ctx.Err() == nil {
		if sess.current == nil {
			if !s.openItem(sess) {
				s.log.Error().Msg("no playable item left in playlist")
				return
			}
			s.mu.Lock()
			s.status.Item = sess.item
			s.status.Sources = sess.sourceIDs()
			s.mu.Unlock()
		}
		s.playItem(ctx, sess)

		if err := sess.current.Close(); err != nil {
			s.log.Warn().Err(err).Str("source", sess.current.ID()).Msg("close failed")
		}
		sess.current = nil
		sess.item = (sess.item + 1) % len(sess.refs)
	}
}

// openItem opens the item at sess.item, skipping forward past items that
// fail. It gives up after one full cycle of failures.
func (s *Scheduler) openItem(sess *session) bool {
	for tries := 0; tries < len(sess.refs); tries++ {
		ref := sess.refs[sess.item]
		src, err := source.Open(ref.Path, s.cfg.Open, s.cfg.Sources, s.cfg.Logger)
		if err == nil {
			sess.current = src
			sess.interval = s.pacing(src)
			s.log.Info().Int("item", sess.item).Str("media", ref.String()).Msg("playing item")
			return true
		}
		s.log.Warn().Err(err).Int("item", sess.item).Msg("skipping item")
		sess.item = (sess.item + 1) % len(sess.refs)
	}
	return false
}

func (s *Scheduler) playItem(ctx context.Context, sess *session) {
	ref := sess.refs[sess.item]
	began := time.Now()
	for {
		tickStart := time.Now()
		if ctx.Err() != nil {
			return
		}
		frame, err := sess.current.NextFrame()
		if ctx.Err() != nil {
			return
		}
		if err == nil && frame.Rewound {
			s.log.Debug().Int("item", sess.item).Msg("item reached its end")
			return
		}
		if ref.Bounded() && time.Since(began) > ref.MaxDuration {
			s.log.Debug().Int("item", sess.item).Dur("elapsed", time.Since(began)).Msg("item duration reached")
			return
		}

		if err != nil {
			s.stale(sess.current.ID(), err)
		} else {
			sess.tiles[0] = frame.Tile
		}
		if !s.present(ctx, sess) {
			return
		}
		if !sleep(ctx, sess.interval-time.Since(tickStart)) {
			return
		}
	}
}
