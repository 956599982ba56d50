package playback

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/gopxl/beep/v2"
)

const (
	// DefaultFFmpegExec is the default path to the ffmpeg executable
	DefaultFFmpegExec = "ffmpeg"

	ffmpegChannels   = 2
	ffmpegBufferSize = 65307
)

// FFmpegDecoder decodes arbitrary formats by piping them through ffmpeg and
// reading back interleaved signed 16-bit little-endian PCM.
type FFmpegDecoder struct {
	Exec string
}

// NewFFmpegDecoder creates a decoder using the given executable
func NewFFmpegDecoder(exec string) *FFmpegDecoder {
	if exec == "" {
		exec = DefaultFFmpegExec
	}
	return &FFmpegDecoder{Exec: exec}
}

// Decode converts data into a buffer at sampleRate
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, sampleRate beep.SampleRate) (*beep.Buffer, error) {
	cmd := exec.CommandContext(ctx, d.Exec,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", strconv.Itoa(ffmpegChannels),
		"-ar", strconv.Itoa(int(sampleRate)),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: ffmpegChannels, Precision: 2})
	readErr := readPCM(bufio.NewReaderSize(pipe, ffmpegBufferSize), buf)

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg exited: %v: %s", ErrUnsupportedFormat, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if readErr != nil {
		return nil, fmt.Errorf("error reading PCM data: %w", readErr)
	}
	if buf.Len() == 0 {
		return nil, ErrUnsupportedFormat
	}

	return buf, nil
}

// readPCM appends stereo s16le frames from r to buf
func readPCM(r io.Reader, buf *beep.Buffer) error {
	const frameBytes = ffmpegChannels * 2
	chunk := make([]byte, 960*frameBytes)
	samples := make([][2]float64, 0, 960)

	for {
		n, err := io.ReadFull(r, chunk)
		n -= n % frameBytes

		samples = samples[:0]
		for i := 0; i < n; i += frameBytes {
			left := int16(binary.LittleEndian.Uint16(chunk[i : i+2]))
			right := int16(binary.LittleEndian.Uint16(chunk[i+2 : i+4]))
			samples = append(samples, [2]float64{float64(left) / 32768, float64(right) / 32768})
		}
		if len(samples) > 0 {
			buf.Append(&sliceStreamer{samples: samples})
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type sliceStreamer struct {
	samples [][2]float64
	pos     int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n = copy(samples, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}
