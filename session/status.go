package session

import (
	"fmt"
	"strings"
	"time"

	"tutti/multitrack"
)

// Status is a snapshot of the session for display
type Status struct {
	State      multitrack.State
	PlayState  multitrack.PlayState
	Position   time.Duration
	Duration   time.Duration
	Gain       multitrack.GainParams
	Solo       string
	AutoRewind bool
	Loading    int
	Pending    int
}

// Status returns a snapshot of the player and the queue
func (s *Session) Status() Status {
	p := s.player
	st := Status{
		State:      p.State(),
		PlayState:  p.PlayState(),
		Position:   p.Position(),
		Duration:   p.Duration(),
		Gain:       p.GainParams(),
		AutoRewind: p.AutoRewind(),
		Loading:    s.queue.Source().Active(),
		Pending:    s.queue.Source().Pending(),
	}
	if i := p.SoloTrackIndex(); i != multitrack.NoSolo {
		if tracks := p.Tracks(); i >= 0 && i < len(tracks) {
			st.Solo = tracks[i].Name()
		}
	}
	return st
}

// String formats the status as a single terminal line
func (st Status) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s / %s", st.PlayState, formatClock(st.Position), formatClock(st.Duration))
	if st.State != multitrack.StateReady {
		fmt.Fprintf(&b, " (%s", st.State)
		if st.Loading > 0 || st.Pending > 0 {
			fmt.Fprintf(&b, ", %d loading, %d queued", st.Loading, st.Pending)
		}
		b.WriteString(")")
	}

	if st.Gain.Mute {
		b.WriteString(" gain: muted")
	} else {
		fmt.Fprintf(&b, " gain: %.0f%%", st.Gain.Gain*100)
	}
	if st.Solo != "" {
		fmt.Fprintf(&b, " solo: %s", st.Solo)
	}
	if st.AutoRewind {
		b.WriteString(" [rewind]")
	}
	return b.String()
}

func formatClock(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	minutes := int(d / time.Minute)
	seconds := float64(d%time.Minute) / float64(time.Second)
	return fmt.Sprintf("%02d:%04.1f", minutes, seconds)
}
