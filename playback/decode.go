package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// pcmBuffer is decoded audio resampled to the context rate
type pcmBuffer struct {
	buf *beep.Buffer
}

var _ Buffer = (*pcmBuffer)(nil)

// Duration returns the playable length of the buffer
func (b *pcmBuffer) Duration() time.Duration {
	return b.buf.Format().SampleRate.D(b.buf.Len())
}

func asPCM(buf Buffer) *pcmBuffer {
	pcm, _ := buf.(*pcmBuffer)
	return pcm
}

// DecodeAudioData decodes WAV, FLAC, Ogg Vorbis or MP3 data into a buffer at
// the context sample rate. Other formats are handed to the ffmpeg fallback
// when one is configured.
func (c *SpeakerContext) DecodeAudioData(ctx context.Context, data []byte) (Buffer, error) {
	if c.State() == StateClosed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamer, format, err := decodeStream(data)
	if errors.Is(err, ErrUnsupportedFormat) && c.ffmpeg != nil {
		c.logger.Debug("Falling back to ffmpeg decoder", slog.Int("bytes", len(data)))
		buf, err := c.ffmpeg.Decode(ctx, data, c.sampleRate)
		if err != nil {
			return nil, err
		}
		return &pcmBuffer{buf: buf}, nil
	}
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	if format.SampleRate != c.sampleRate {
		source = beep.Resample(4, format.SampleRate, c.sampleRate, streamer)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: c.sampleRate, NumChannels: 2, Precision: 2})
	buf.Append(source)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return &pcmBuffer{buf: buf}, nil
}

func decodeStream(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)

	r := bytes.NewReader(data)
	switch sniff(data) {
	case "wav":
		streamer, format, err = wav.Decode(r)
	case "flac":
		streamer, format, err = flac.Decode(r)
	case "vorbis":
		streamer, format, err = vorbis.Decode(io.NopCloser(r))
	case "mp3":
		streamer, format, err = mp3.Decode(io.NopCloser(r))
	default:
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode audio: %w", err)
	}

	return streamer, format, nil
}

// sniff identifies the container from its magic bytes
func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "vorbis"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return ""
	}
}
