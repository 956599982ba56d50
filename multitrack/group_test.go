package multitrack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTracks() TrackConfiguration {
	return NewTrackConfiguration(
		TrackConfig{SourceURL: "tutti.wav"},
		TrackConfig{SourceURL: "violin.wav"},
		TrackConfig{SourceURL: "cello.wav"},
	)
}

func newLoadedGroup(t *testing.T, rec *recorder, opts GroupOptions) (*TrackGroup, *fixture) {
	t.Helper()
	f := newFixture(map[string]string{"tutti.wav": "10s", "violin.wav": "10s", "cello.wav": "10s"})
	opts.Listener = rec.listener()
	g := NewTrackGroup(threeTracks(), f.env, opts)
	require.NoError(t, g.Load(context.Background()))
	require.Equal(t, StateReady, g.State())
	return g, f
}

func masterGains(g *TrackGroup) []float64 {
	var gains []float64
	for _, t := range g.Tracks() {
		gains = append(gains, t.MasterGain())
	}
	return gains
}

func TestGroupLoad(t *testing.T) {
	rec := &recorder{}
	g, _ := newLoadedGroup(t, rec, GroupOptions{})

	assert.Equal(t, 10*time.Second, g.Duration())
	assert.NoError(t, g.Error())
	assert.Equal(t, []State{StateLoading, StateReady}, rec.States())
}

func TestGroupLoadNeverReportsCreated(t *testing.T) {
	for range 100 {
		rec := &recorder{}
		newLoadedGroup(t, rec, GroupOptions{})
		require.Equal(t, []State{StateLoading, StateReady}, rec.States())
	}
}

func TestGroupDurationBeforeReady(t *testing.T) {
	f := newFixture(nil)
	g := NewTrackGroup(threeTracks(), f.env, GroupOptions{})

	assert.Equal(t, StateCreated, g.State())
	assert.Equal(t, time.Duration(0), g.Duration())
	assert.Equal(t, time.Duration(0), g.Position())
	assert.Len(t, g.Tracks(), 3)
	assert.NotEmpty(t, g.ID())
}

func TestGroupPartialFailure(t *testing.T) {
	f := newFixture(map[string]string{"tutti.wav": "10s", "cello.wav": "10s"})
	rec := &recorder{}
	g := NewTrackGroup(threeTracks(), f.env, GroupOptions{Listener: rec.listener()})

	err := g.Load(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateFaulted, g.State())
	assert.ErrorIs(t, g.Error(), g.Tracks()[1].Error())
	assert.Equal(t, StateReady, g.Tracks()[0].State(), "healthy siblings keep their state")
	assert.Equal(t, StateFaulted, g.Tracks()[1].State())
	assert.Equal(t, StateReady, g.Tracks()[2].State())
	assert.Equal(t, time.Duration(0), g.Duration())
}

func TestGroupStatePrecedence(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	tests := []struct {
		name     string
		states   []State
		errs     []error
		expected State
		err      error
	}{
		{"all ready", []State{StateReady, StateReady, StateReady}, nil, StateReady, nil},
		{"ready and created", []State{StateReady, StateCreated, StateReady}, nil, StateCreated, nil},
		{"loading beats created", []State{StateCreated, StateLoading, StateReady}, nil, StateLoading, nil},
		{
			"faulted beats loading",
			[]State{StateReady, StateLoading, StateFaulted},
			[]error{nil, nil, first},
			StateFaulted, first,
		},
		{
			"first faulted error wins",
			[]State{StateFaulted, StateReady, StateFaulted},
			[]error{second, nil, first},
			StateFaulted, second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			g := NewTrackGroup(threeTracks(), f.env, GroupOptions{})

			for i, track := range g.Tracks() {
				track.mu.Lock()
				track.state = tt.states[i]
				if tt.errs != nil {
					track.err = tt.errs[i]
				}
				track.mu.Unlock()
			}
			g.handleTrackStateChanged()

			assert.Equal(t, tt.expected, g.State())
			assert.Equal(t, tt.err, g.Error())
		})
	}
}

func TestGroupDisposesWhenMemberIsDisposed(t *testing.T) {
	rec := &recorder{}
	g, _ := newLoadedGroup(t, rec, GroupOptions{})

	g.Tracks()[2].Dispose()

	assert.Equal(t, StateDisposed, g.State())
	for _, track := range g.Tracks() {
		assert.Equal(t, StateDisposed, track.State())
	}
	assert.Equal(t, StateDisposed, rec.States()[len(rec.States())-1])
}

func TestGroupSoloMixing(t *testing.T) {
	f := newFixture(nil)
	cfg := threeTracks()
	cfg.SoloTrackIndex = 1
	g := NewTrackGroup(cfg, f.env, GroupOptions{})

	assert.Equal(t, []float64{0, 1, 0}, masterGains(g))
	assert.Equal(t, 1, g.SoloTrackIndex())

	g.SetSoloTrackIndex(NoSolo)
	assert.Equal(t, []float64{1, 1, 1}, masterGains(g))

	g.SetGainParams(GainParams{Gain: 0.5})
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, masterGains(g))

	g.SetSoloTrackIndex(2)
	assert.Equal(t, []float64{0, 0, 0.5}, masterGains(g))

	g.SetGainParams(GainParams{Gain: 0.5, Mute: true})
	assert.Equal(t, []float64{0, 0, 0}, masterGains(g))
	assert.Equal(t, GainParams{Gain: 0.5, Mute: true}, g.GainParams())
}

func TestGroupInitialGain(t *testing.T) {
	f := newFixture(nil)
	g := NewTrackGroup(threeTracks(), f.env, GroupOptions{GainParams: &GainParams{Gain: 0.25}})

	assert.Equal(t, []float64{0.25, 0.25, 0.25}, masterGains(g))
}

func TestGroupTransportBroadcast(t *testing.T) {
	rec := &recorder{}
	g, f := newLoadedGroup(t, rec, GroupOptions{})

	g.Start()
	assert.Equal(t, PlayStateStarted, g.PlayState())
	assert.Len(t, f.pc.Sources(), 3)
	for _, track := range g.Tracks() {
		assert.Equal(t, PlayStateStarted, track.PlayState())
	}

	f.pc.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, g.Position())

	g.Pause()
	assert.Equal(t, PlayStatePausing, g.PlayState())

	g.Stop(false)
	g.Stop(false)
	assert.Equal(t, PlayStateStopped, g.PlayState())
	for _, track := range g.Tracks() {
		assert.Equal(t, PlayStateStopped, track.PlayState())
		assert.Equal(t, 2*time.Second, track.Position())
	}

	assert.Equal(t, []PlayState{PlayStateStarted, PlayStatePausing, PlayStateStopped}, rec.PlayStates())
}

func TestGroupStartAtAlignsTracks(t *testing.T) {
	g, f := newLoadedGroup(t, &recorder{}, GroupOptions{})

	g.StartAt(3 * time.Second)

	for i := range 3 {
		_, offset, _ := sourceNode(t, f.pc, i).Schedule()
		assert.Equal(t, 3*time.Second, offset)
	}

	g.SetPosition(7 * time.Second)
	for _, track := range g.Tracks() {
		assert.Equal(t, 7*time.Second, track.Position())
		assert.Equal(t, PlayStateStarted, track.PlayState())
	}
}

func endAll(t *testing.T, g *TrackGroup, f *fixture) {
	t.Helper()
	for _, s := range f.pc.Sources() {
		if !s.Stopped() {
			s.End()
		}
	}
	require.Equal(t, PlayStateStopped, g.PlayState())
	require.Equal(t, g.Duration(), g.Position())
}

func TestGroupAutoRewind(t *testing.T) {
	g, f := newLoadedGroup(t, &recorder{}, GroupOptions{AutoRewind: true})
	assert.True(t, g.AutoRewind())

	g.Start()
	f.pc.Advance(10 * time.Second)
	endAll(t, g, f)

	g.Start()

	assert.Equal(t, PlayStateStarted, g.PlayState())
	sources := f.pc.Sources()
	require.Len(t, sources, 6)
	for _, s := range sources[3:] {
		_, offset, duration := s.Schedule()
		assert.Equal(t, time.Duration(0), offset)
		assert.Equal(t, 10*time.Second, duration)
	}
}

func TestGroupWithoutAutoRewindStaysAtEnd(t *testing.T) {
	g, f := newLoadedGroup(t, &recorder{}, GroupOptions{})

	g.Start()
	endAll(t, g, f)

	g.Start()
	assert.Equal(t, PlayStateStopped, g.PlayState())
	assert.Len(t, f.pc.Sources(), 3)

	g.SetAutoRewind(true)
	g.Start()
	assert.Equal(t, PlayStateStarted, g.PlayState())
}

func TestGroupDispose(t *testing.T) {
	rec := &recorder{}
	g, f := newLoadedGroup(t, rec, GroupOptions{})

	g.Start()
	g.Dispose()
	g.Dispose()

	assert.Equal(t, StateDisposed, g.State())
	assert.Equal(t, PlayStateStopped, g.PlayState())
	for i, track := range g.Tracks() {
		assert.Equal(t, StateDisposed, track.State())
		assert.True(t, sourceNode(t, f.pc, i).Stopped())
	}

	assert.Equal(t, []PlayState{PlayStateStarted, PlayStateStopped}, rec.PlayStates())
	states := rec.States()
	assert.Equal(t, StateDisposed, states[len(states)-1])
	assert.Equal(t, 1, countOf(states, StateDisposed))
	assert.ErrorIs(t, g.Load(context.Background()), ErrDisposed)

	g.Start()
	assert.Len(t, f.pc.Sources(), 3)
}

func countOf(states []State, s State) int {
	n := 0
	for _, v := range states {
		if v == s {
			n++
		}
	}
	return n
}
