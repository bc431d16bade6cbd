package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, seconds float64, rate int, amp float64) []float64 {
	n := int(seconds * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"scale up", []float64{0.25, -0.5, 0.1}, []float64{0.5, -1, 0.2}},
		{"already unit", []float64{1, -1}, []float64{1, -1}},
		{"silence", []float64{0, 0, 0}, []float64{0, 0, 0}},
		{"empty", nil, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestPad(t *testing.T) {
	c := Clip{Samples: []float64{1, 1, 1}, SampleRate: 1000}
	got := Pad(c, 300*time.Millisecond)
	require.Len(t, got.Samples, 603)
	assert.Equal(t, 0.0, got.Samples[299])
	assert.Equal(t, 1.0, got.Samples[300])
	assert.Equal(t, 1.0, got.Samples[302])
	assert.Equal(t, 0.0, got.Samples[303])
	assert.InDelta(t, 0.603, got.Duration(), 1e-9)
}

func TestSliceAndTruncate(t *testing.T) {
	c := Clip{Samples: make([]float64, 100), SampleRate: 10}
	assert.Len(t, c.Slice(-5, 20).Samples, 20)
	assert.Len(t, c.Slice(90, 200).Samples, 10)
	assert.Len(t, c.Slice(50, 40).Samples, 0)
	assert.Len(t, c.Truncate(3).Samples, 30)
	assert.Len(t, c.Truncate(0).Samples, 100)
	assert.Len(t, c.Truncate(60).Samples, 100)
}

func TestResample(t *testing.T) {
	in := sine(100, 1, 8000, 0.5)
	out := Resample(in, 8000, 16000)
	assert.Len(t, out, 16000)
	for i := 0; i < 100; i++ {
		assert.InDelta(t, in[i], out[2*i], 1e-9)
	}

	down := Resample(in, 8000, 4000)
	assert.Len(t, down, 4000)

	same := Resample(in, 8000, 8000)
	assert.Equal(t, len(in), len(same))
}

func TestToMono(t *testing.T) {
	got := ToMono([]float64{1, 0, 0.5, 0.5, -1, 1}, 2)
	assert.Equal(t, []float64{0.5, 0.5, 0}, got)
}

func TestWAVRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tone.wav")
	clip := Clip{Samples: sine(440, 0.5, 16000, 0.8), SampleRate: 16000}

	require.NoError(t, Codec{}.Save(ctx, path, clip))
	got, err := Codec{}.Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, 16000, got.SampleRate)
	require.Len(t, got.Samples, len(clip.Samples))
	for i := 0; i < len(clip.Samples); i += 97 {
		assert.InDelta(t, clip.Samples[i], got.Samples[i], 1.0/16000)
	}
}

func TestWAVBytes(t *testing.T) {
	clip := Clip{Samples: []float64{0, 0.5, -0.5, 1, -1}, SampleRate: 8000}
	data, err := WAVBytes(clip)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	got, err := DecodeWAVBytes(data)
	require.NoError(t, err)
	require.Len(t, got.Samples, 5)
	assert.InDelta(t, 0.5, got.Samples[1], 1e-3)
	assert.InDelta(t, -1, got.Samples[4], 1e-3)
}

func TestFixPipedWAV(t *testing.T) {
	clip := Clip{Samples: sine(200, 0.1, 8000, 0.3), SampleRate: 8000}
	data, err := WAVBytes(clip)
	require.NoError(t, err)

	// ffmpeg writing to a pipe leaves the size fields unset.
	binary.LittleEndian.PutUint32(data[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFFF)

	got, err := fixPipedWAV(data)
	require.NoError(t, err)
	assert.Len(t, got.Samples, len(clip.Samples))
}

func TestPCM16(t *testing.T) {
	got := PCM16(Clip{Samples: []float64{0, 1, -1, 2}})
	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0x7f, 0x01, 0x80, 0xff, 0x7f}, got)
}

func TestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	_, err := Codec{}.Load(ctx, "notes.txt")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	err = Codec{}.Save(ctx, filepath.Join(t.TempDir(), "x.aiff"), Clip{SampleRate: 8000})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	assert.True(t, IsSupported("a/B.MP3"))
	assert.False(t, IsSupported("a/b.json"))
	assert.True(t, IsOutputFormat("ogg"))
	assert.False(t, IsOutputFormat("aiff"))
}

func TestFFmpegRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tone.flac")
	clip := Clip{Samples: sine(440, 0.5, 16000, 0.8), SampleRate: 16000}

	require.NoError(t, Codec{}.Save(ctx, path, clip))
	got, err := Codec{}.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 16000, got.SampleRate)
	assert.InDelta(t, 0.5, got.Duration(), 0.01)
}
