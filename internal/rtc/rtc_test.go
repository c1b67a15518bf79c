package rtc

import (
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/sdp"
	"github.com/pion/webrtc/v2"
	"github.com/pion/webrtc/v2/pkg/media"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rviscarra/webrtc-video-wall/internal/encoders"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

func offer(direction string, formats ...string) string {
	lines := []string{
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96 102",
		"c=IN IP4 0.0.0.0",
		"a=" + direction,
	}
	lines = append(lines, formats...)
	return strings.Join(lines, "\r\n") + "\r\n"
}

var browserFormats = []string{
	"a=rtpmap:96 VP8/90000",
	"a=rtpmap:102 H264/90000",
	"a=fmtp:102 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
}

func parse(t *testing.T, s string) *sdp.SessionDescription {
	t.Helper()
	desc := &sdp.SessionDescription{}
	require.NoError(t, desc.Unmarshal(s))
	return desc
}

func TestFindBestCodec(t *testing.T) {
	desc := parse(t, offer("recvonly", browserFormats...))
	codec, err := findBestCodec(desc, h264ProfileLevelID)
	require.NoError(t, err)
	assert.Equal(t, uint8(102), codec.PayloadType)
	assert.Equal(t, webrtc.H264, codec.Name)
	assert.Contains(t, codec.SDPFmtpLine, "packetization-mode=1")

	_, err = findBestCodec(desc, "640c1f")
	assert.Equal(t, ErrNoMatchingCodec, err)
}

func TestGetTrackDirection(t *testing.T) {
	assert.Equal(t, webrtc.RTPTransceiverDirectionRecvonly,
		getTrackDirection(parse(t, offer("recvonly", browserFormats...))))
	assert.Equal(t, webrtc.RTPTransceiverDirectionSendrecv,
		getTrackDirection(parse(t, offer("sendrecv", browserFormats...))))
	assert.Equal(t, webrtc.RTPTransceiverDirectionInactive,
		getTrackDirection(parse(t, offer("inactive", browserFormats...))))
}

type fakeGrabber struct {
	frames chan *image.RGBA
	stops  int
	mu     sync.Mutex
}

func newFakeGrabber() *fakeGrabber {
	return &fakeGrabber{frames: make(chan *image.RGBA)}
}

func (g *fakeGrabber) Start()                     {}
func (g *fakeGrabber) Frames() <-chan *image.RGBA { return g.frames }
func (g *fakeGrabber) Fps() int                   { return 20 }
func (g *fakeGrabber) Bounds() image.Rectangle    { return image.Rect(0, 0, 1920, 1080) }
func (g *fakeGrabber) Stop() {
	g.mu.Lock()
	g.stops++
	g.mu.Unlock()
}

type fakeEncoder struct {
	sizes []image.Point
}

func (e *fakeEncoder) Encode(frame *image.RGBA) ([]byte, error) {
	e.sizes = append(e.sizes, frame.Rect.Size())
	return []byte{0, 0, 0, 1}, nil
}
func (e *fakeEncoder) VideoSize() (image.Point, error) { return image.Pt(64, 36), nil }
func (e *fakeEncoder) Close() error                    { return nil }

type sampleSink struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (s *sampleSink) WriteSample(sample media.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *sampleSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func TestStreamerEncodesResizedFrames(t *testing.T) {
	grabber := newFakeGrabber()
	enc := &fakeEncoder{}
	sink := &sampleSink{}
	s := &rtcStreamer{
		track:   sink,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		grabber: grabber,
		encoder: enc,
		size:    image.Pt(64, 36),
		log:     zerolog.Nop(),
	}

	s.start()
	s.start()
	grabber.frames <- image.NewRGBA(image.Rect(0, 0, 128, 72))
	grabber.frames <- image.NewRGBA(image.Rect(0, 0, 64, 36))
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)

	s.close()
	assert.Equal(t, []image.Point{image.Pt(64, 36), image.Pt(64, 36)}, enc.sizes)
	grabber.mu.Lock()
	assert.Equal(t, 1, grabber.stops)
	grabber.mu.Unlock()
}

func TestStreamerEndsWithFeed(t *testing.T) {
	grabber := newFakeGrabber()
	s := newRTCStreamer(nil, grabber, &fakeEncoder{}, image.Pt(64, 36), zerolog.Nop()).(*rtcStreamer)
	s.start()
	close(grabber.frames)
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("streamer kept running after the feed closed")
	}
}

type noEncoders struct{}

func (noEncoders) NewEncoder(encoders.VideoCodec, image.Point, int) (encoders.Encoder, error) {
	return nil, encoders.ErrUnsupportedCodec
}
func (noEncoders) Supports(encoders.VideoCodec) bool { return false }

type grabbers struct{ err error }

func (g grabbers) CreateFrameGrabber(int, int) (rdisplay.FrameGrabber, error) {
	if g.err != nil {
		return nil, g.err
	}
	return newFakeGrabber(), nil
}

func TestServiceNeedsH264(t *testing.T) {
	svc := NewRemoteSurfaceService("stun:localhost", grabbers{}, noEncoders{}, zerolog.Nop())
	_, err := svc.CreateRemoteSurfaceConnection(0, 20)
	assert.True(t, errors.Is(err, encoders.ErrUnsupportedCodec))
}

type onlyH264 struct{ noEncoders }

func (onlyH264) Supports(c encoders.VideoCodec) bool { return c == encoders.H264Codec }

func TestServiceForwardsGrabberErrors(t *testing.T) {
	missing := errors.New("no surface 7")
	svc := NewRemoteSurfaceService("stun:localhost", grabbers{err: missing}, onlyH264{}, zerolog.Nop())
	_, err := svc.CreateRemoteSurfaceConnection(7, 20)
	assert.Equal(t, missing, err)

	svc = NewRemoteSurfaceService("stun:localhost", grabbers{}, onlyH264{}, zerolog.Nop())
	conn, err := svc.CreateRemoteSurfaceConnection(0, 20)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}
