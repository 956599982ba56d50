package playback

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = beep.SampleRate(1000)

func newTestContext(t *testing.T) *SpeakerContext {
	t.Helper()

	c := NewSpeakerContext(SpeakerOptions{SampleRate: testRate})
	c.initSpeaker = func(beep.SampleRate, int) error { return nil }
	c.playSpeaker = func(beep.Streamer) {}
	c.closeSpeaker = func() {}
	return c
}

func render(c *SpeakerContext, frames int) [][2]float64 {
	samples := make([][2]float64, frames)
	c.graph.Stream(samples)
	return samples
}

// encodeWAV writes a mono 16-bit WAV holding frames copies of value
func encodeWAV(t *testing.T, rate, frames, value int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	data := make([]int, frames)
	for i := range data {
		data[i] = value
	}
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

func TestResumeRunsAndNotifies(t *testing.T) {
	c := newTestContext(t)
	var seen []ContextState
	cancel := c.OnStateChange(func(s ContextState) { seen = append(seen, s) })
	defer cancel()

	assert.Equal(t, StateSuspended, c.State())
	require.NoError(t, c.Resume(context.Background()))
	require.NoError(t, c.Resume(context.Background()))

	assert.Equal(t, StateRunning, c.State())
	assert.Equal(t, []ContextState{StateRunning}, seen)
}

func TestResumeInitFailureStaysSuspended(t *testing.T) {
	c := newTestContext(t)
	c.initSpeaker = func(beep.SampleRate, int) error { return assert.AnError }

	err := c.Resume(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateSuspended, c.State())
}

func TestCloseIsTerminal(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Resume(context.Background()))
	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Resume(context.Background()), ErrClosed)
	_, err := c.DecodeAudioData(context.Background(), []byte("RIFF"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCurrentTimeOnlyAdvancesWhileRunning(t *testing.T) {
	c := newTestContext(t)

	render(c, 100)
	assert.Zero(t, c.CurrentTime())

	require.NoError(t, c.Resume(context.Background()))
	render(c, 500)
	assert.Equal(t, 500*time.Millisecond, c.CurrentTime())

	require.NoError(t, c.Suspend())
	render(c, 500)
	assert.Equal(t, 500*time.Millisecond, c.CurrentTime())
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "wav"},
		{"flac", []byte("fLaC\x00\x00"), "flac"},
		{"ogg", []byte("OggS\x00\x02"), "vorbis"},
		{"mp3 with id3", []byte("ID3\x04\x00"), "mp3"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"riff without wave", []byte("RIFF\x00\x00\x00\x00AVI "), ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniff(tt.data))
		})
	}
}

func TestDecodeWAV(t *testing.T) {
	c := newTestContext(t)

	buf, err := c.DecodeAudioData(context.Background(), encodeWAV(t, 1000, 500, 16384))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, buf.Duration())
}

func TestDecodeWAVResamples(t *testing.T) {
	c := newTestContext(t)

	buf, err := c.DecodeAudioData(context.Background(), encodeWAV(t, 2000, 1000, 16384))
	require.NoError(t, err)
	assert.InDelta(t, float64(500*time.Millisecond), float64(buf.Duration()), float64(5*time.Millisecond))
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	c := newTestContext(t)

	_, err := c.DecodeAudioData(context.Background(), []byte("definitely not audio"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSourceNodePlaysRangeAndEnds(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Resume(context.Background()))

	buf, err := c.DecodeAudioData(context.Background(), encodeWAV(t, 1000, 500, 16384))
	require.NoError(t, err)

	ended := make(chan struct{})
	source := c.CreateBufferSource(buf)
	source.SetOnEnded(func() { close(ended) })
	gain := c.CreateGain()
	gain.SetValue(0.5)
	source.Connect(gain)
	source.Start(c.CurrentTime(), 100*time.Millisecond, 200*time.Millisecond)

	samples := render(c, 300)
	assert.InDelta(t, 0.25, samples[0][0], 1e-3)
	assert.InDelta(t, 0.25, samples[199][1], 1e-3)
	assert.Zero(t, samples[200][0])

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("natural end was not reported")
	}
}

func TestSourceNodeStopDoesNotFireEnded(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Resume(context.Background()))

	buf, err := c.DecodeAudioData(context.Background(), encodeWAV(t, 1000, 100, 16384))
	require.NoError(t, err)

	ended := make(chan struct{}, 1)
	source := c.CreateBufferSource(buf)
	source.SetOnEnded(func() { ended <- struct{}{} })
	source.Start(c.CurrentTime(), 0, buf.Duration())

	render(c, 50)
	source.Stop()
	samples := render(c, 100)
	assert.Zero(t, samples[0][0])

	select {
	case <-ended:
		t.Fatal("stopped node reported a natural end")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSourceNodeDelayedStart(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Resume(context.Background()))

	buf, err := c.DecodeAudioData(context.Background(), encodeWAV(t, 1000, 100, 16384))
	require.NoError(t, err)

	source := c.CreateBufferSource(buf)
	source.Start(c.CurrentTime()+10*time.Millisecond, 0, buf.Duration())

	samples := render(c, 20)
	assert.Zero(t, samples[9][0])
	assert.InDelta(t, 0.5, samples[10][0], 1e-3)
}

func TestGainRampFollowsDeviceClock(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Resume(context.Background()))

	gain := c.CreateGain()
	gain.SetTargetAtTime(0, c.CurrentTime(), 15*time.Millisecond)
	assert.InDelta(t, 1, gain.Value(), 1e-9)

	render(c, 15)
	assert.InDelta(t, math.Exp(-1), gain.Value(), 1e-9)

	render(c, 200)
	assert.InDelta(t, 0, gain.Value(), 1e-5)

	gain.SetValue(0.75)
	assert.Equal(t, 0.75, gain.Value())
}
