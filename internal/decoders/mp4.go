package decoders

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"
)

// Packets inspected when estimating the frame interval
const probePackets = 32

var mp4Extensions = map[string]bool{".mp4": true, ".m4v": true, ".mov": true}

// IsMP4 reports whether filename carries an MP4 family extension.
func IsMP4(filename string) bool {
	return mp4Extensions[strings.ToLower(filepath.Ext(filename))]
}

// StreamInfo is the metadata of the first video stream in a file
type StreamInfo struct {
	Codec    string        `json:"codec"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Interval time.Duration `json:"interval"`
}

// FrameRate returns the reciprocal of Interval, if known.
func (i StreamInfo) FrameRate() (float64, bool) {
	if i.Interval <= 0 {
		return 0, false
	}
	return float64(time.Second) / float64(i.Interval), true
}

// mp4Stream demuxes the first video stream of an MP4 file.
type mp4Stream struct {
	file    *os.File
	demuxer *mp4.Demuxer
	codecs  []av.CodecData
	video   int
	info    StreamInfo
}

func openMP4(filename string) (*mp4Stream, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	if err := checkAtoms(file); err != nil {
		file.Close()
		return nil, errors.Wrap(err, filename)
	}

	demuxer := mp4.NewDemuxer(file)
	codecs, err := demuxer.Streams()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "read streams of %s", filename)
	}

	s := &mp4Stream{file: file, demuxer: demuxer, codecs: codecs, video: -1}
	for i, codec := range codecs {
		if !codec.Type().IsVideo() {
			continue
		}
		info, ok := codec.(av.VideoCodecData)
		if !ok {
			continue
		}
		s.video = i
		s.info = StreamInfo{Codec: codec.Type().String(), Width: info.Width(), Height: info.Height()}
		break
	}
	if s.video < 0 {
		file.Close()
		return nil, errors.Errorf("no video stream found in %s", filename)
	}

	s.info.Interval, err = s.measureInterval()
	if err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// checkAtoms walks the top-level boxes of f and rewinds it. The demuxer
// spins on boxes shorter than their header, so those are rejected here.
func checkAtoms(f *os.File) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	header := make([]byte, 8)
	offset := int64(0)
	for offset < fi.Size() {
		if _, err := f.ReadAt(header, offset); err != nil {
			return errors.Errorf("truncated box header at %d", offset)
		}
		size := int64(binary.BigEndian.Uint32(header))
		if size < int64(len(header)) {
			return errors.Errorf("unsupported box size %d at %d", size, offset)
		}
		offset += size
	}
	_, err = f.Seek(0, io.SeekStart)
	return err
}

// measureInterval reads the first packets and rewinds again.
func (s *mp4Stream) measureInterval() (time.Duration, error) {
	var times []time.Duration
	for len(times) < probePackets {
		pkt, err := s.readVideoPacket()
		if err == ErrEndOfStream {
			break
		}
		if err != nil {
			return 0, err
		}
		times = append(times, pkt.Time)
	}
	if err := s.rewind(); err != nil {
		return 0, err
	}
	return estimateInterval(times), nil
}

// estimateInterval returns the smallest positive gap between consecutive
// presentation times, which survives B-frame reordering and dropped frames.
func estimateInterval(times []time.Duration) time.Duration {
	var best time.Duration
	for i := 1; i < len(times); i++ {
		d := times[i] - times[i-1]
		if d < 0 {
			d = -d
		}
		if d > 0 && (best == 0 || d < best) {
			best = d
		}
	}
	return best
}

func (s *mp4Stream) readVideoPacket() (av.Packet, error) {
	for {
		pkt, err := s.demuxer.ReadPacket()
		if err == io.EOF {
			return av.Packet{}, ErrEndOfStream
		}
		if err != nil {
			return av.Packet{}, errors.Wrapf(err, "read packet from %s", s.file.Name())
		}
		if int(pkt.Idx) == s.video {
			return pkt, nil
		}
	}
}

func (s *mp4Stream) rewind() error {
	return errors.Wrapf(s.demuxer.SeekToTime(0), "rewind %s", s.file.Name())
}

func (s *mp4Stream) Close() error {
	return s.file.Close()
}

// Probe reads the video metadata of an MP4 file without decoding frames.
// Files without a video stream are an error.
func Probe(filename string) (StreamInfo, error) {
	s, err := openMP4(filename)
	if err != nil {
		return StreamInfo{}, err
	}
	defer s.Close()
	return s.info, nil
}
