package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no codec handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// SupportedExt lists the containers accepted as input.
var SupportedExt = []string{".wav", ".aiff", ".ogg", ".mp3", ".m4a", ".wma", ".flac"}

// outputCodecs maps an output extension to the ffmpeg codec used for it.
var outputCodecs = map[string]string{
	"ogg":  "libopus",
	"mp3":  "libmp3lame",
	"flac": "flac",
	"m4a":  "aac",
}

// IsSupported reports whether path has an input extension this package
// can decode.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExt {
		if e == ext {
			return true
		}
	}
	return false
}

// IsOutputFormat reports whether chunks can be written with format
// (extension without dot).
func IsOutputFormat(format string) bool {
	format = strings.ToLower(format)
	if format == "wav" {
		return true
	}
	_, ok := outputCodecs[format]
	return ok
}

// Codec reads and writes audio files. WAV is handled natively; other
// containers go through the ffmpeg binary.
type Codec struct {
	// FFmpeg is the ffmpeg executable, "ffmpeg" when empty.
	FFmpeg string
}

func (c Codec) ffmpeg() string {
	if c.FFmpeg == "" {
		return "ffmpeg"
	}
	return c.FFmpeg
}

// Load decodes path to a mono clip.
func (c Codec) Load(ctx context.Context, path string) (Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(path) {
		return Clip{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	if ext == ".wav" {
		f, err := os.Open(path)
		if err != nil {
			return Clip{}, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		clip, err := DecodeWAV(f)
		if err != nil {
			return Clip{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return clip, nil
	}

	// ffmpeg -i input -ac 1 -f wav -acodec pcm_s16le pipe:1
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpeg(),
		"-nostdin", "-v", "error",
		"-i", path,
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Clip{}, fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	clip, err := fixPipedWAV(stdout.Bytes())
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return clip, nil
}

// Save encodes the clip to path; the extension selects the container.
func (c Codec) Save(ctx context.Context, path string, clip Clip) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !IsOutputFormat(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if format == "wav" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := EncodeWAV(f, clip); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		return f.Close()
	}

	data, err := WAVBytes(clip)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpeg(),
		"-nostdin", "-v", "error", "-y",
		"-f", "wav", "-i", "pipe:0",
		"-c:a", outputCodecs[format],
		"-strict", "-2",
		path,
	)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ffmpeg encode %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// fixPipedWAV patches the RIFF and data sizes that ffmpeg leaves unset
// when writing WAV to a non-seekable pipe.
func fixPipedWAV(data []byte) (Clip, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))
		off := 12
		for off+8 <= len(data) {
			id := string(data[off : off+4])
			size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
			if id == "data" {
				if size == 0 || size == 0xFFFFFFFF || off+8+size > len(data) {
					binary.LittleEndian.PutUint32(data[off+4:off+8], uint32(len(data)-off-8))
				}
				break
			}
			off += 8 + size + size%2
		}
	}
	return DecodeWAVBytes(data)
}
