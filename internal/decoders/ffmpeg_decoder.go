//go:build ffmpeg
// +build ffmpeg

package decoders

import (
	"github.com/nareix/joy4/cgo/ffmpeg"
	"github.com/pkg/errors"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// ffmpegDecoder decodes the video stream of an MP4 file with libavcodec
type ffmpegDecoder struct {
	stream  *mp4Stream
	decoder *ffmpeg.VideoDecoder
}

func newFFmpegDecoder(path string) (Decoder, error) {
	stream, err := openMP4(path)
	if err != nil {
		return nil, err
	}
	decoder, err := ffmpeg.NewVideoDecoder(stream.codecs[stream.video])
	if err != nil {
		stream.Close()
		return nil, errors.Wrapf(err, "init %s decoder", stream.info.Codec)
	}
	return &ffmpegDecoder{
		stream:  stream,
		decoder: decoder,
	}, nil
}

//Next decodes packets until a full picture comes out
func (d *ffmpegDecoder) Next() (*raster.Tile, error) {
	for {
		pkt, err := d.stream.readVideoPacket()
		if err != nil {
			return nil, err
		}
		frame, err := d.decoder.Decode(pkt.Data)
		if err != nil {
			return nil, errors.Wrap(err, "decode")
		}
		if frame == nil {
			continue
		}
		tile := raster.FromImage(&frame.Image)
		frame.Free()
		return tile, nil
	}
}

func (d *ffmpegDecoder) FrameRate() (float64, bool) {
	return d.stream.info.FrameRate()
}

func (d *ffmpegDecoder) SeekToStart() error {
	return d.stream.rewind()
}

//Close releases the file; the codec context is freed by its finalizer
func (d *ffmpegDecoder) Close() error {
	return d.stream.Close()
}

func init() {
	registeredDecoders[FileTag] = newFFmpegDecoder
}
