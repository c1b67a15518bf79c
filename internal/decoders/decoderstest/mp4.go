// Package decoderstest writes small media files for tests.
package decoderstest

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"
)

// Parameter sets of a 1280x720 High profile stream.
var (
	sps = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	pps = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
)

// Width and Height of the video written by WriteMP4
const (
	Width  = 1280
	Height = 720
)

// WriteMP4 writes an MP4 file holding one H.264 track of frames packets
// spaced by interval. Every packet carries payload bytes of filler so the
// file size can be controlled; the samples are not decodable.
func WriteMP4(path string, frames int, interval time.Duration, payload int) error {
	codec, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	if err != nil {
		return errors.Wrap(err, "codec data")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	muxer := mp4.NewMuxer(f)
	if err := muxer.WriteHeader([]av.CodecData{codec}); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i := 0; i < frames; i++ {
		data := make([]byte, 5+payload)
		binary.BigEndian.PutUint32(data, uint32(1+payload))
		data[4] = 0x65
		pkt := av.Packet{
			Idx:        0,
			IsKeyFrame: i == 0,
			Time:       time.Duration(i) * interval,
			Data:       data,
		}
		if err := muxer.WritePacket(pkt); err != nil {
			return errors.Wrapf(err, "write packet %d", i)
		}
	}
	if err := muxer.WriteTrailer(); err != nil {
		return errors.Wrap(err, "write trailer")
	}
	return f.Close()
}
