// Package playback runs the tick loop that pulls frames from every source,
// composes the canvas and hands the viewport slices to presentation.
package playback

import (
	"context"
	"image"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
	"github.com/rviscarra/webrtc-video-wall/internal/source"
)

// DefaultInterval paces ticks when no source reports a frame rate.
const DefaultInterval = 20 * time.Millisecond

var (
	// ErrNoPlayableMedia is returned by Start when no source could be opened.
	ErrNoPlayableMedia = errors.New("no playable media")
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("playback already running")
	// ErrInvalidViewports is returned when the viewport layout is unusable.
	ErrInvalidViewports = errors.New("one or two non-empty viewports required")
)

// Mode selects how sources are laid on the canvas.
type Mode int

const (
	// ModeTiling packs every source's tile with circular selection.
	ModeTiling Mode = iota
	// ModeMosaic concatenates all tiles into a ribbon cut into bands.
	ModeMosaic
	// ModeSingle plays one playlist item at a time, honouring durations.
	ModeSingle
)

var modeNames = map[Mode]string{
	ModeTiling: "tiling",
	ModeMosaic: "mosaic",
	ModeSingle: "single",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return "unknown"
}

// ParseMode maps a configured mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(s, n) {
			return m, nil
		}
	}
	return 0, errors.Errorf("unknown playback mode %q", s)
}

// State of the scheduler
type State int

const (
	Idle State = iota
	// Starting while the sources of a new session are being opened
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Presenter receives one independently owned slice per viewport each tick.
// It returns once the slices have been shown.
type Presenter interface {
	Present(ctx context.Context, slices []*raster.Buffer) error
}

type discard struct{}

func (discard) Present(context.Context, []*raster.Buffer) error { return nil }

// Config of a Scheduler
type Config struct {
	Mode Mode
	// Viewports are the sizes of the one or two output surfaces, stacked
	// top to bottom on the canvas.
	Viewports       []image.Point
	DefaultInterval time.Duration
	// Fill pads the mosaic's last band.
	Fill      color.RGBA
	Sources   source.Options
	Open      source.Opener
	Presenter Presenter
	Logger    zerolog.Logger
}

// Status is a snapshot of the scheduler for the control API.
type Status struct {
	Session     string    `json:"session,omitempty"`
	State       string    `json:"state"`
	Mode        string    `json:"mode"`
	Sources     []string  `json:"sources"`
	Item        int       `json:"item"`
	Ticks       uint64    `json:"ticks"`
	StaleFrames uint64    `json:"stale_frames"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastTick    time.Time `json:"last_tick,omitempty"`
}

// Scheduler drives at most one playback session at a time.
type Scheduler struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// New creates an idle scheduler.
func New(cfg Config) *Scheduler {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultInterval
	}
	if cfg.Presenter == nil {
		cfg.Presenter = discard{}
	}
	return &Scheduler{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "scheduler").Logger(),
		status: Status{State: Idle.String(), Mode: cfg.Mode.String()},
	}
}

// Start opens the playlist's sources and launches the tick loop. The
// returned id names the session. Sources are opened without holding the
// scheduler lock; a Stop issued meanwhile ends the session right after it
// starts.
func (s *Scheduler) Start(ctx context.Context, refs []playlist.MediaReference) (string, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	if err := validViewports(s.cfg.Viewports); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if len(refs) == 0 {
		s.mu.Unlock()
		return "", ErrNoPlayableMedia
	}
	done := make(chan struct{})
	s.state = Starting
	s.done = done
	s.status = Status{State: Starting.String(), Mode: s.cfg.Mode.String()}
	s.mu.Unlock()

	sess, err := s.open(refs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Idle
		s.status.State = Idle.String()
		close(done)
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	if s.state == Stopping {
		cancel()
	} else {
		s.state = Running
	}
	s.cancel = cancel
	s.status = Status{
		Session:   sess.id,
		State:     s.state.String(),
		Mode:      s.cfg.Mode.String(),
		Sources:   sess.sourceIDs(),
		Item:      sess.item,
		StartedAt: time.Now(),
	}

	s.log.Info().Str("session", sess.id).Str("mode", s.cfg.Mode.String()).
		Int("entries", len(refs)).Dur("interval", sess.interval).Msg("playback started")

	go s.run(ctx, cancel, sess, done)
	return sess.id, nil
}

// Stop asks the running session to end. It is idempotent and returns
// without waiting; use Wait to block until teardown is complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Starting:
		// Start cancels the session once its sources are open
		s.state = Stopping
		s.status.State = Stopping.String()
	case Running:
		s.state = Stopping
		s.status.State = Stopping.String()
		s.cancel()
	}
}

// Wait blocks until the current session, if any, has torn down.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Sources = append([]string(nil), s.status.Sources...)
	return st
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, sess *session, done chan struct{}) {
	defer s.finish(sess, cancel, done)

	if s.cfg.Mode == ModeSingle {
		s.runSingle(ctx, sess)
		return
	}
	s.runSources(ctx, sess)
}

func (s *Scheduler) finish(sess *session, cancel context.CancelFunc, done chan struct{}) {
	cancel()
	sess.close(s.log)

	s.mu.Lock()
	s.state = Idle
	s.status.State = Idle.String()
	s.mu.Unlock()

	s.log.Info().Str("session", sess.id).Msg("playback stopped")
	close(done)
}

// runSources is the tick loop of the tiling and mosaic modes.
func (s *Scheduler) runSources(ctx context.Context, sess *session) {
	for {
		began := time.Now()
		if !s.tick(ctx, sess) {
			return
		}
		if !sleep(ctx, sess.interval-time.Since(began)) {
			return
		}
	}
}

// tick pulls one frame from every source and presents the composed canvas.
// It returns false once cancellation was observed.
func (s *Scheduler) tick(ctx context.Context, sess *session) bool {
	for i, src := range sess.sources {
		if ctx.Err() != nil {
			return false
		}
		frame, err := src.NextFrame()
		if err != nil {
			s.stale(src.ID(), err)
		} else {
			for _, pos := range sess.binding.SlotsFor(i) {
				sess.tiles[pos] = frame.Tile
			}
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return s.present(ctx, sess)
}

// present composes the canvas and hands its slices over. Composition and
// presentation faults are logged; only cancellation stops the loop.
func (s *Scheduler) present(ctx context.Context, sess *session) bool {
	if ctx.Err() != nil {
		return false
	}

	buf := sess.canvas.ensure(sess.tiles)
	if err := sess.strategy.Compose(buf, sess.tiles); err != nil {
		s.log.Warn().Err(err).Msg("composition skipped")
	}

	slices, err := sess.canvas.slices()
	if err != nil {
		s.log.Error().Err(err).Msg("can't slice canvas")
		return true
	}
	if err := s.cfg.Presenter.Present(ctx, slices); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.log.Warn().Err(err).Msg("present failed")
	}

	s.mu.Lock()
	s.status.Ticks++
	s.status.LastTick = time.Now()
	s.mu.Unlock()
	return ctx.Err() == nil
}

func (s *Scheduler) stale(id string, err error) {
	s.log.Debug().Err(err).Str("source", id).Msg("stale frame")
	s.mu.Lock()
	s.status.StaleFrames++
	s.mu.Unlock()
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func validViewports(vps []image.Point) error {
	if len(vps) == 0 || len(vps) > 2 {
		return ErrInvalidViewports
	}
	for _, vp := range vps {
		if vp.X <= 0 || vp.Y <= 0 {
			return errors.Wrapf(ErrInvalidViewports, "viewport %v", vp)
		}
	}
	return nil
}

func newSessionID() string {
	return uuid.New().String()
}
