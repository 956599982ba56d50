package cmd

import (
	"sync"
	"time"

	"tutti/audioctx"
	"tutti/multitrack"
)

const (
	seekStep = 5 * time.Second
	gainStep = 0.1
	maxGain  = 2.0
)

type action int

const (
	actionNone action = iota
	actionToggle
	actionStop
	actionRewind
	actionSeekBack
	actionSeekForward
	actionMute
	actionGainUp
	actionGainDown
	actionSolo
	actionClearSolo
	actionAutoRewind
	actionQuit
)

// key is one decoded key press. index is set for actionSolo.
type key struct {
	action action
	index  int
}

// parseKeys decodes raw terminal input. Arrow keys arrive as ESC [ C/D.
func parseKeys(buf []byte) []key {
	var keys []key
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if b == 0x1b && i+2 < len(buf) && buf[i+1] == '[' {
			switch buf[i+2] {
			case 'C':
				keys = append(keys, key{action: actionSeekForward})
			case 'D':
				keys = append(keys, key{action: actionSeekBack})
			}
			i += 2
			continue
		}

		switch {
		case b == ' ':
			keys = append(keys, key{action: actionToggle})
		case b == 's':
			keys = append(keys, key{action: actionStop})
		case b == 'r':
			keys = append(keys, key{action: actionRewind})
		case b == 'm':
			keys = append(keys, key{action: actionMute})
		case b == '+' || b == '=':
			keys = append(keys, key{action: actionGainUp})
		case b == '-':
			keys = append(keys, key{action: actionGainDown})
		case b == 'a':
			keys = append(keys, key{action: actionAutoRewind})
		case b == '0':
			keys = append(keys, key{action: actionClearSolo})
		case b >= '1' && b <= '9':
			keys = append(keys, key{action: actionSolo, index: int(b - '1')})
		case b == 'q' || b == 0x03: // ctrl+c is not a signal in raw mode
			keys = append(keys, key{action: actionQuit})
		default:
			keys = append(keys, key{action: actionNone})
		}
	}
	return keys
}

// apply runs k against the player and reports whether to quit
func apply(p *multitrack.Player, k key) bool {
	switch k.action {
	case actionToggle:
		if p.PlayState() == multitrack.PlayStateStarted {
			p.Pause()
		} else {
			p.Start()
		}
	case actionStop:
		p.Stop()
	case actionRewind:
		p.SetPosition(0)
	case actionSeekBack:
		p.SetPosition(max(p.Position()-seekStep, 0))
	case actionSeekForward:
		p.SetPosition(p.Position() + seekStep)
	case actionMute:
		g := p.GainParams()
		g.Mute = !g.Mute
		p.SetGainParams(g)
	case actionGainUp:
		g := p.GainParams()
		g.Gain = min(g.Gain+gainStep, maxGain)
		p.SetGainParams(g)
	case actionGainDown:
		g := p.GainParams()
		g.Gain = max(g.Gain-gainStep, 0)
		p.SetGainParams(g)
	case actionSolo:
		if k.index >= len(p.Tracks()) {
			return false
		}
		if p.SoloTrackIndex() == k.index {
			p.SetSoloTrackIndex(multitrack.NoSolo)
		} else {
			p.SetSoloTrackIndex(k.index)
		}
	case actionClearSolo:
		p.SetSoloTrackIndex(multitrack.NoSolo)
	case actionAutoRewind:
		p.SetAutoRewind(!p.AutoRewind())
	case actionQuit:
		return true
	}
	return false
}

// keyboardEngagement treats every key press as a user interaction
type keyboardEngagement struct {
	mu sync.Mutex
	fn func()
}

var _ audioctx.Engagement = (*keyboardEngagement)(nil)

// Arm implements audioctx.Engagement
func (e *keyboardEngagement) Arm(fn func()) (disarm func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.fn = nil
	}
}

// Engage fires the armed callback once
func (e *keyboardEngagement) Engage() {
	e.mu.Lock()
	fn := e.fn
	e.fn = nil
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}
