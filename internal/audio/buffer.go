// Package audio wraps decoding, normalization and playback of game sounds.
// Decoding is delegated to the beep codec packages; playback goes through a
// single shared speaker so at most one sound is audible at a time.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrDecode is returned when none of the supported codecs accept the bytes.
var ErrDecode = errors.New("undecodable audio data")

// NormPeak is the peak amplitude every decoded buffer is normalized to.
const NormPeak = 0.85

// Buffer is decoded, normalized PCM. Samples are stereo frames in [-1, 1]
// at the source sample rate. Buffers are immutable after Decode; tiles that
// share a Buffer pointer share one sound.
type Buffer struct {
	Rate    beep.SampleRate
	Samples [][2]float64
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return b.Rate.D(len(b.Samples))
}

// Streamer returns a one-shot streamer over the buffer's samples.
func (b *Buffer) Streamer() beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(b.Samples) {
			return 0, false
		}
		n := copy(samples, b.Samples[pos:])
		pos += n
		return n, true
	})
}

type decoder func(io.ReadCloser) (beep.Streamer, beep.Format, error)

// Decode decodes wav, mp3, ogg/vorbis or flac bytes into a normalized
// Buffer. A failure to decode is per-file: callers loading a batch skip the
// failed file and continue.
func Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	codecs := []struct {
		name string
		fn   decoder
	}{
		{"wav", func(r io.ReadCloser) (beep.Streamer, beep.Format, error) { return wav.Decode(r) }},
		{"mp3", func(r io.ReadCloser) (beep.Streamer, beep.Format, error) { return mp3.Decode(r) }},
		{"vorbis", func(r io.ReadCloser) (beep.Streamer, beep.Format, error) { return vorbis.Decode(r) }},
		{"flac", func(r io.ReadCloser) (beep.Streamer, beep.Format, error) { return flac.Decode(r) }},
	}

	var lastErr error
	for _, c := range codecs {
		s, format, err := c.fn(newByteReader(data))
		if err != nil {
			lastErr = err
			continue
		}
		buf, err := drain(s, format)
		if err != nil {
			lastErr = err
			continue
		}
		Normalize(buf)
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, lastErr)
}

// drain pulls the full streamer contents into a Buffer.
func drain(s beep.Streamer, format beep.Format) (*Buffer, error) {
	buf := &Buffer{Rate: format.SampleRate}
	chunk := make([][2]float64, 512)
	for {
		n, ok := s.Stream(chunk)
		buf.Samples = append(buf.Samples, chunk[:n]...)
		if !ok {
			break
		}
	}
	if errStreamer, ok := s.(interface{ Err() error }); ok {
		if err := errStreamer.Err(); err != nil {
			return nil, err
		}
	}
	if closer, ok := s.(io.Closer); ok {
		_ = closer.Close()
	}
	if len(buf.Samples) == 0 {
		return nil, errors.New("decoded stream is empty")
	}
	return buf, nil
}

// Normalize scales each channel in place so its peak absolute sample equals
// NormPeak. A silent channel (peak 0) is left untouched.
func Normalize(b *Buffer) {
	for ch := 0; ch < 2; ch++ {
		var peak float64
		for i := range b.Samples {
			v := b.Samples[i][ch]
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		if peak == 0 {
			continue
		}
		gain := NormPeak / peak
		for i := range b.Samples {
			b.Samples[i][ch] *= gain
		}
	}
}

// byteReader adapts a byte slice to the ReadSeekCloser the codecs expect.
type byteReader struct {
	*bytes.Reader
}

func (byteReader) Close() error { return nil }

func newByteReader(data []byte) byteReader {
	return byteReader{bytes.NewReader(data)}
}
