package rtc

import (
	"fmt"
	"image"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/sdp"
	"github.com/pion/webrtc/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/encoders"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

const h264ProfileLevelID = "42e01f"

// ErrNoMatchingCodec is returned when the offer has no usable H264 format
var ErrNoMatchingCodec = errors.New("couldn't find a matching codec")

// RemoteSurfacePeerConn is a webrtc.PeerConnection wrapper that implements the
// RemoteSurfaceConnection interface
type RemoteSurfacePeerConn struct {
	connection *webrtc.PeerConnection
	stunServer string
	track      *webrtc.Track
	pliTicker  *time.Ticker
	streamer   videoStreamer
	grabber    rdisplay.FrameGrabber
	encService encoders.Service
	encoder    encoders.Encoder
	closeOnce  sync.Once
	log        zerolog.Logger
}

func findBestCodec(sdp *sdp.SessionDescription, profile string) (*webrtc.RTPCodec, error) {
	for _, md := range sdp.MediaDescriptions {
		for _, format := range md.MediaName.Formats {
			intPt, err := strconv.Atoi(format)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid payload type %q", format)
			}
			payloadType := uint8(intPt)
			sdpCodec, err := sdp.GetCodecForPayloadType(payloadType)
			if err != nil {
				return nil, errors.Errorf("can't find codec for %d", payloadType)
			}

			if sdpCodec.Name == webrtc.H264 {
				packetSupport := strings.Contains(sdpCodec.Fmtp, "packetization-mode=1")
				supportsProfile := strings.Contains(sdpCodec.Fmtp, fmt.Sprintf("profile-level-id=%s", profile))
				if packetSupport && supportsProfile {
					var codec = webrtc.NewRTPH264Codec(payloadType, sdpCodec.ClockRate)
					codec.SDPFmtpLine = sdpCodec.Fmtp
					return codec, nil
				}
			}
		}
	}
	return nil, ErrNoMatchingCodec
}

func newRemoteSurfacePeerConn(stunServer string, grabber rdisplay.FrameGrabber, encService encoders.Service, logger zerolog.Logger) *RemoteSurfacePeerConn {
	return &RemoteSurfacePeerConn{
		stunServer: stunServer,
		grabber:    grabber,
		encService: encService,
		log:        logger,
	}
}

func getTrackDirection(sdp *sdp.SessionDescription) webrtc.RTPTransceiverDirection {
	for _, mediaDesc := range sdp.MediaDescriptions {
		if mediaDesc.MediaName.Media == "video" {
			if _, recvOnly := mediaDesc.Attribute("recvonly"); recvOnly {
				return webrtc.RTPTransceiverDirectionRecvonly
			} else if _, sendRecv := mediaDesc.Attribute("sendrecv"); sendRecv {
				return webrtc.RTPTransceiverDirectionSendrecv
			}
		}
	}
	return webrtc.RTPTransceiverDirectionInactive
}

// ProcessOffer handles the SDP offer coming from the client,
// return the SDP answer that must be passed back to stablish the WebRTC
// connection.
func (p *RemoteSurfacePeerConn) ProcessOffer(strOffer string) (string, error) {
	offer := sdp.SessionDescription{}
	if err := offer.Unmarshal(strOffer); err != nil {
		return "", errors.Wrap(err, "parse offer")
	}

	codec, err := findBestCodec(&offer, h264ProfileLevelID)
	if err != nil {
		return "", err
	}
	direction := getTrackDirection(&offer)
	if direction != webrtc.RTPTransceiverDirectionSendrecv && direction != webrtc.RTPTransceiverDirectionRecvonly {
		return "", errors.New("unsupported transceiver direction")
	}

	mediaEngine := webrtc.MediaEngine{}
	mediaEngine.RegisterCodec(codec)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pcconf := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{p.stunServer},
			},
		},
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	}

	peerConn, err := api.NewPeerConnection(pcconf)
	if err != nil {
		return "", errors.Wrap(err, "new peer connection")
	}
	p.connection = peerConn

	peerConn.OnICEConnectionStateChange(func(connState webrtc.ICEConnectionState) {
		p.log.Info().Str("state", connState.String()).Msg("connection state changed")
		switch connState {
		case webrtc.ICEConnectionStateConnected:
			p.start()
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
			p.Close()
		}
	})

	track, err := peerConn.NewTrack(
		codec.PayloadType,
		uint32(rand.Int31()),
		uuid.New().String(),
		"video-wall",
	)
	if err != nil {
		p.Close()
		return "", errors.Wrap(err, "new track")
	}
	p.track = track

	p.log.Debug().Str("codec", codec.Name).Uint8("payload_type", codec.PayloadType).Str("fmtp", codec.SDPFmtpLine).Msg("codec selected")

	if direction == webrtc.RTPTransceiverDirectionSendrecv {
		_, err = peerConn.AddTrack(track)
	} else {
		_, err = peerConn.AddTransceiverFromTrack(track, webrtc.RtpTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
	}
	if err != nil {
		p.Close()
		return "", errors.Wrap(err, "add track")
	}

	err = peerConn.SetRemoteDescription(webrtc.SessionDescription{
		SDP:  strOffer,
		Type: webrtc.SDPTypeOffer,
	})
	if err != nil {
		p.Close()
		return "", errors.Wrap(err, "set remote description")
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		p.Close()
		return "", errors.Wrap(err, "create answer")
	}

	bounds := p.grabber.Bounds()
	size, err := encoders.FindBestSizeForH264Profile(encoders.H264SupportedProfile, image.Point{
		X: bounds.Dx(),
		Y: bounds.Dy(),
	})
	if err != nil {
		p.Close()
		return "", err
	}

	encoder, err := p.encService.NewEncoder(encoders.H264Codec, size, p.grabber.Fps())
	if err != nil {
		p.Close()
		return "", err
	}
	p.encoder = encoder
	p.streamer = newRTCStreamer(p.track, p.grabber, encoder, size, p.log)

	if err := peerConn.SetLocalDescription(answer); err != nil {
		p.Close()
		return "", errors.Wrap(err, "set local description")
	}
	return answer.SDP, nil
}

func (p *RemoteSurfacePeerConn) start() {
	p.streamer.start()
	if p.pliTicker == nil {
		p.startPLILoop()
	}
}

func (p *RemoteSurfacePeerConn) startPLILoop() {
	p.pliTicker = time.NewTicker(3 * time.Second)
	go func() {
		for range p.pliTicker.C {
			err := p.connection.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: p.track.SSRC()},
			})
			if err != nil {
				return
			}
		}
	}()
}

// Close Stops the PLI ticker, the video streamer and closes the WebRTC peer
// connection. It is safe to call more than once.
func (p *RemoteSurfacePeerConn) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.pliTicker != nil {
			p.pliTicker.Stop()
		}
		if p.streamer != nil {
			p.streamer.close()
		} else {
			p.grabber.Stop()
		}
		if p.encoder != nil {
			if cerr := p.encoder.Close(); cerr != nil {
				p.log.Warn().Err(cerr).Msg("close encoder")
			}
		}
		if p.connection != nil {
			err = p.connection.Close()
		}
	})
	return err
}
