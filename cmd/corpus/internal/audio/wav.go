package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a PCM WAV stream.
var ErrInvalidWAV = errors.New("not a valid wav stream")

// DecodeWAV reads a PCM WAV stream and downmixes it to mono.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("read pcm buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	samples := make([]float64, len(buf.Data))
	switch depth {
	case 8:
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	case 16, 24, 32:
		scale := float64(int64(1) << (depth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	default:
		return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}

	return Clip{
		Samples:    ToMono(samples, buf.Format.NumChannels),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// EncodeWAV writes c as 16-bit PCM mono.
func EncodeWAV(w io.WriteSeeker, c Clip) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("encode wav: invalid sample rate %d", c.SampleRate)
	}
	enc := wav.NewEncoder(w, c.SampleRate, 16, 1, 1)

	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767.0)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WAVBytes encodes c into an in-memory WAV document.
func WAVBytes(c Clip) ([]byte, error) {
	ws := &seekBuffer{}
	if err := EncodeWAV(ws, c); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// DecodeWAVBytes is DecodeWAV over a byte slice.
func DecodeWAVBytes(data []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// PCM16 returns the clip as little-endian signed 16-bit samples without a
// container header.
func PCM16(c Clip) []byte {
	out := make([]byte, 2*len(c.Samples))
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		v := int16(s * 32767.0)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	s.pos = int(next)
	return next, nil
}
