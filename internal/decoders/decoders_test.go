package decoders

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rviscarra/webrtc-video-wall/internal/decoders/decoderstest"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		spec, tag, path string
	}{
		{"pattern:320x180@25", PatternTag, "320x180@25"},
		{"file:/videos/a.mp4", FileTag, "/videos/a.mp4"},
		{"/videos/a.mp4", FileTag, "/videos/a.mp4"},
		{`D:\3\clip.mp4`, FileTag, `D:\3\clip.mp4`},
	}
	for _, c := range cases {
		tag, path := Split(c.spec)
		assert.Equal(t, c.tag, tag, c.spec)
		assert.Equal(t, c.path, path, c.spec)
	}
	assert.True(t, IsVirtual("pattern:10x10"))
	assert.False(t, IsVirtual("/tmp/a.mp4"))
}

func TestOpenUnknownIsUnavailable(t *testing.T) {
	_, err := Open("pattern:bogus")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestParsePattern(t *testing.T) {
	opts, err := ParsePattern("320x180@25#ff8800/100")
	require.NoError(t, err)
	assert.Equal(t, 320, opts.Width)
	assert.Equal(t, 180, opts.Height)
	assert.Equal(t, 25.0, opts.FPS)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x88, A: 0xff}, opts.Color)
	assert.Equal(t, 100, opts.Frames)

	opts, err = ParsePattern("64x48")
	require.NoError(t, err)
	assert.Equal(t, 0.0, opts.FPS)
	assert.Equal(t, defaultPatternFrames, opts.Frames)

	for _, bad := range []string{"", "0x10", "10x10@x", "10x10/0", "10x10#zz"} {
		_, err := ParsePattern(bad)
		assert.Error(t, err, bad)
	}
}

func TestPatternDecoderEndsAndRewinds(t *testing.T) {
	dec, err := Open("pattern:8x4@10/2")
	require.NoError(t, err)
	defer dec.Close()

	rate, ok := dec.FrameRate()
	assert.True(t, ok)
	assert.Equal(t, 10.0, rate)

	for i := 0; i < 2; i++ {
		tile, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, 8, tile.Width())
	}
	_, err = dec.Next()
	assert.Equal(t, ErrEndOfStream, err)

	require.NoError(t, dec.SeekToStart())
	tile, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), tile.At(0, 0).R, "bar starts at column 0")
}

func TestEstimateInterval(t *testing.T) {
	ms := time.Millisecond
	assert.Equal(t, 40*ms, estimateInterval([]time.Duration{0, 40 * ms, 80 * ms, 160 * ms}))
	assert.Equal(t, 40*ms, estimateInterval([]time.Duration{0, 80 * ms, 40 * ms, 120 * ms}))
	assert.Equal(t, time.Duration(0), estimateInterval([]time.Duration{0}))

	info := StreamInfo{Interval: 40 * ms}
	rate, ok := info.FrameRate()
	assert.True(t, ok)
	assert.InDelta(t, 25.0, rate, 0.001)
}

func TestProbeMP4(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	require.NoError(t, decoderstest.WriteMP4(clip, 12, 40*time.Millisecond, 32))

	info, err := Probe(clip)
	require.NoError(t, err)
	assert.Equal(t, "H264", info.Codec)
	assert.Equal(t, decoderstest.Width, info.Width)
	assert.Equal(t, decoderstest.Height, info.Height)
	assert.Equal(t, 40*time.Millisecond, info.Interval)

	// measuring rewinds the stream to its first packet
	s, err := openMP4(clip)
	require.NoError(t, err)
	defer s.Close()
	pkt, err := s.readVideoPacket()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), pkt.Time)

	junk := filepath.Join(dir, "junk.mp4")
	require.NoError(t, os.WriteFile(junk, make([]byte, 4096), 0o644))
	_, err = Probe(junk)
	assert.Error(t, err)

	_, err = Probe(filepath.Join(dir, "missing.mp4"))
	assert.Error(t, err)
}

func TestIsMP4(t *testing.T) {
	assert.True(t, IsMP4("/videos/a.mp4"))
	assert.True(t, IsMP4(`D:\3\CLIP.MOV`))
	assert.True(t, IsMP4("b.m4v"))
	assert.False(t, IsMP4("c.avi"))
	assert.False(t, IsMP4("mp4"))
}
