package playback

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rviscarra/webrtc-video-wall/internal/decoders"
	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
)

type fakeMedia struct {
	w, h   int
	c      color.RGBA
	fps    float64
	frames int // 0 never ends
	failAt int // 0 never fails
}

type fakeDecoder struct {
	media  fakeMedia
	pos    int
	closed *int32
}

func (d *fakeDecoder) Next() (*raster.Tile, error) {
	if d.media.failAt > 0 && d.pos >= d.media.failAt {
		return nil, errors.New("corrupt packet")
	}
	if d.media.frames > 0 && d.pos >= d.media.frames {
		return nil, decoders.ErrEndOfStream
	}
	d.pos++
	t := raster.New(d.media.w, d.media.h)
	if err := t.Fill(t.Bounds(), d.media.c); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *fakeDecoder) FrameRate() (float64, bool) { return d.media.fps, d.media.fps > 0 }

func (d *fakeDecoder) SeekToStart() error {
	d.pos = 0
	return nil
}

func (d *fakeDecoder) Close() error {
	atomic.AddInt32(d.closed, 1)
	return nil
}

type library struct {
	media  map[string]fakeMedia
	opens  map[string]int
	closed int32
	mu     sync.Mutex
}

func newLibrary(media map[string]fakeMedia) *library {
	return &library{media: media, opens: map[string]int{}}
}

func (l *library) open(spec string) (decoders.Decoder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.media[spec]
	if !ok {
		return nil, decoders.ErrUnavailable
	}
	l.opens[spec]++
	return &fakeDecoder{media: m, closed: &l.closed}, nil
}

func (l *library) openCount(spec string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens[spec]
}

type recorder struct {
	mu     sync.Mutex
	frames [][]*raster.Buffer
	at     []time.Time
}

func (r *recorder) Present(_ context.Context, slices []*raster.Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, slices)
	r.at = append(r.at, time.Now())
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) last() []*raster.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// firstWith returns when a frame whose primary slice has c at the origin
// was first presented.
func (r *recorder) firstWith(c color.RGBA) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.frames {
		if f[0].At(0, 0) == c {
			return r.at[i], true
		}
	}
	return time.Time{}, false
}

func newScheduler(mode Mode, lib *library, rec *recorder, vps ...image.Point) *Scheduler {
	return New(Config{
		Mode:            mode,
		Viewports:       vps,
		DefaultInterval: 5 * time.Millisecond,
		Open:            lib.open,
		Presenter:       rec,
		Logger:          zerolog.Nop(),
	})
}

func refs(paths ...string) []playlist.MediaReference {
	out := make([]playlist.MediaReference, len(paths))
	for i, p := range paths {
		out[i] = playlist.NewReference(p, 0)
	}
	return out
}

func TestStartWithoutPlayableMedia(t *testing.T) {
	lib := newLibrary(nil)
	s := newScheduler(ModeTiling, lib, &recorder{}, image.Pt(100, 100))

	_, err := s.Start(context.Background(), nil)
	assert.Equal(t, ErrNoPlayableMedia, err)

	_, err = s.Start(context.Background(), refs("missing", "gone"))
	assert.Equal(t, ErrNoPlayableMedia, err)
	assert.Equal(t, Idle, s.State())

	single := newScheduler(ModeSingle, lib, &recorder{}, image.Pt(100, 100))
	_, err = single.Start(context.Background(), refs("missing"))
	assert.Equal(t, ErrNoPlayableMedia, err)
}

func TestStartRejectsViewports(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red}})
	for _, vps := range [][]image.Point{
		nil,
		{image.Pt(0, 10)},
		{image.Pt(10, 10), image.Pt(10, 10), image.Pt(10, 10)},
	} {
		s := newScheduler(ModeTiling, lib, &recorder{}, vps...)
		_, err := s.Start(context.Background(), refs("a"))
		assert.True(t, errors.Is(err, ErrInvalidViewports), "%v", vps)
	}
}

func TestTilingPresentsViewportSlices(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 100, h: 80, c: red},
		"b": {w: 150, h: 80, c: green},
		"c": {w: 200, h: 80, c: blue},
	})
	rec := &recorder{}
	s := newScheduler(ModeTiling, lib, rec, image.Pt(400, 100), image.Pt(300, 50))

	id, err := s.Start(context.Background(), refs("a", "b", "c"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, Running, s.State())

	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, time.Millisecond)

	slices := rec.last()
	require.Len(t, slices, 2)
	assert.Equal(t, image.Pt(400, 100), slices[0].Size())
	assert.Equal(t, image.Pt(300, 50), slices[1].Size())

	row := slices[0]
	assert.Equal(t, red, row.At(0, 0))
	assert.Equal(t, green, row.At(100, 0))
	assert.Equal(t, blue, row.At(250, 0))
	// the last 50 columns of the third tile wrap to the next row
	assert.Equal(t, blue, row.At(0, 80))
	assert.Equal(t, red, row.At(50, 80))

	st := s.Status()
	assert.Equal(t, id, st.Session)
	assert.Equal(t, []string{"a", "b", "c"}, st.Sources)
	assert.Equal(t, "tiling", st.Mode)

	s.Stop()
	s.Wait()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, int32(3), atomic.LoadInt32(&lib.closed))
}

func TestSlicesAreIndependentCopies(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 20, h: 10, c: red}})
	rec := &recorder{}
	s := newScheduler(ModeTiling, lib, rec, image.Pt(40, 20))

	_, err := s.Start(context.Background(), refs("a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	first, second := rec.frames[0][0], rec.frames[1][0]
	require.NoError(t, first.Fill(first.Bounds(), blue))
	assert.Equal(t, red, second.At(0, 0))
}

func TestRepeatedEntriesShareOneSource(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 50, h: 20, c: red},
		"b": {w: 50, h: 20, c: green},
	})
	rec := &recorder{}
	s := newScheduler(ModeTiling, lib, rec, image.Pt(200, 20))

	_, err := s.Start(context.Background(), refs("a", "b", "a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	assert.Equal(t, 1, lib.openCount("a"))
	assert.Equal(t, 1, lib.openCount("b"))

	row := rec.last()[0]
	assert.Equal(t, red, row.At(0, 0))
	assert.Equal(t, green, row.At(50, 0))
	assert.Equal(t, red, row.At(100, 0))
	assert.Equal(t, red, row.At(150, 0))
}

func TestUnavailableSourceIsDropped(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"good": {w: 10, h: 10, c: green}})
	rec := &recorder{}
	s := newScheduler(ModeTiling, lib, rec, image.Pt(40, 10))

	_, err := s.Start(context.Background(), refs("bad", "good", "bad"))
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, s.Status().Sources)

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, green, rec.last()[0].At(30, 0))
	s.Stop()
	s.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red}})
	s := newScheduler(ModeTiling, lib, &recorder{}, image.Pt(10, 10))

	s.Stop()
	s.Wait()
	assert.Equal(t, Idle, s.State())

	_, err := s.Start(context.Background(), refs("a"))
	require.NoError(t, err)
	_, err = s.Start(context.Background(), refs("a"))
	assert.Equal(t, ErrAlreadyRunning, err)

	s.Stop()
	s.Stop()
	s.Wait()
	assert.Equal(t, Idle, s.State())

	_, err = s.Start(context.Background(), refs("a"))
	require.NoError(t, err, "a stopped scheduler can start again")
	s.Stop()
	s.Wait()
}

func TestParentContextCancelsPlayback(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red}})
	s := newScheduler(ModeTiling, lib, &recorder{}, image.Pt(10, 10))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Start(ctx, refs("a"))
	require.NoError(t, err)
	cancel()
	s.Wait()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&lib.closed))
}

func TestOpeningSourcesDoesNotBlockStatus(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red}})
	release := make(chan struct{})
	opening := make(chan struct{})
	s := New(Config{
		Mode:      ModeTiling,
		Viewports: []image.Point{image.Pt(10, 10)},
		Open: func(spec string) (decoders.Decoder, error) {
			close(opening)
			<-release
			return lib.open(spec)
		},
		Logger: zerolog.Nop(),
	})

	started := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background(), refs("a"))
		started <- err
	}()
	<-opening

	statusDone := make(chan Status, 1)
	go func() { statusDone <- s.Status() }()
	select {
	case st := <-statusDone:
		assert.Equal(t, "starting", st.State)
	case <-time.After(time.Second):
		t.Fatal("Status blocked while sources were opening")
	}
	assert.Equal(t, Starting, s.State())

	_, err := s.Start(context.Background(), refs("a"))
	assert.Equal(t, ErrAlreadyRunning, err)

	s.Stop()
	close(release)
	require.NoError(t, <-started)
	s.Wait()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&lib.closed), "a stop while starting tears the session down")
}

func TestStaleFrameKeepsPreviousTile(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red, failAt: 1}})
	rec := &recorder{}
	s := newScheduler(ModeTiling, lib, rec, image.Pt(20, 10))

	_, err := s.Start(context.Background(), refs("a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	assert.Equal(t, red, rec.last()[0].At(0, 0))
	assert.True(t, s.Status().StaleFrames > 0)
}

func TestPacingFollowsFastestSource(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"slow": {w: 10, h: 10, c: red, fps: 10},
		"fast": {w: 10, h: 10, c: green, fps: 50},
	})
	s := newScheduler(ModeTiling, lib, &recorder{}, image.Pt(20, 10))

	sess, err := s.open(refs("slow", "fast"))
	require.NoError(t, err)
	defer sess.close(zerolog.Nop())
	assert.Equal(t, 20*time.Millisecond, sess.interval)

	none := newLibrary(map[string]fakeMedia{"a": {w: 10, h: 10, c: red}})
	s = newScheduler(ModeTiling, none, &recorder{}, image.Pt(20, 10))
	sess, err = s.open(refs("a"))
	require.NoError(t, err)
	defer sess.close(zerolog.Nop())
	assert.Equal(t, 5*time.Millisecond, sess.interval)
}

func TestMosaicHeightMismatchKeepsPresenting(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 10, h: 10, c: red},
		"b": {w: 10, h: 12, c: green},
	})
	rec := &recorder{}
	s := newScheduler(ModeMosaic, lib, rec, image.Pt(40, 10))

	_, err := s.Start(context.Background(), refs("a", "b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	// nothing could be composed, the canvas stays blank
	assert.Equal(t, color.RGBA{}, rec.last()[0].At(0, 0))
}

func TestMosaicComposesRibbon(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 30, h: 10, c: red},
		"b": {w: 30, h: 10, c: green},
	})
	rec := &recorder{}
	s := New(Config{
		Mode:            ModeMosaic,
		Viewports:       []image.Point{image.Pt(40, 20)},
		DefaultInterval: 5 * time.Millisecond,
		Fill:            blue,
		Open:            lib.open,
		Presenter:       rec,
		Logger:          zerolog.Nop(),
	})

	_, err := s.Start(context.Background(), refs("a", "b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	view := rec.last()[0]
	assert.Equal(t, red, view.At(0, 0))
	assert.Equal(t, green, view.At(30, 0))
	// second band holds the last 20 ribbon columns then the fill
	assert.Equal(t, green, view.At(0, 10))
	assert.Equal(t, blue, view.At(25, 10))
}

func TestSingleModeAdvancesOnDuration(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 32, h: 16, c: red},
		"b": {w: 32, h: 16, c: green},
	})
	rec := &recorder{}
	s := newScheduler(ModeSingle, lib, rec, image.Pt(64, 32))

	list := []playlist.MediaReference{
		playlist.NewReference("a", 50*time.Millisecond),
		playlist.NewReference("b", 0),
	}
	started := time.Now()
	_, err := s.Start(context.Background(), list)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := rec.firstWith(green)
		return ok
	}, 2*time.Second, time.Millisecond)
	s.Stop()
	s.Wait()

	at, _ := rec.firstWith(green)
	assert.True(t, at.Sub(started) >= 50*time.Millisecond, "advanced after %v", at.Sub(started))
	first, ok := rec.firstWith(red)
	require.True(t, ok)
	assert.True(t, first.Before(at))
	assert.Equal(t, "single", s.Status().Mode)
}

func TestSingleModeAdvancesAtEndOfStream(t *testing.T) {
	lib := newLibrary(map[string]fakeMedia{
		"a": {w: 32, h: 16, c: red, frames: 3},
		"b": {w: 32, h: 16, c: green},
	})
	rec := &recorder{}
	s := newScheduler(ModeSingle, lib, rec, image.Pt(64, 32))

	_, err := s.Start(context.Background(), refs("missing", "a", "b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := rec.firstWith(green)
		return ok
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, 1, lib.openCount("a"))
	assert.Equal(t, 2, s.Status().Item)
	s.Stop()
	s.Wait()
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeTiling, ModeMosaic, ModeSingle} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("Mosaic")
	require.NoError(t, err)
	assert.Equal(t, ModeMosaic, got)

	_, err = ParseMode("kaleidoscope")
	assert.Error(t, err)
}
