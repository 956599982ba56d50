package playback

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// gainNode evaluates its gain per sample on the device clock so ramps stay
// sample accurate regardless of when control calls arrive.
type gainNode struct {
	ctx *SpeakerContext

	mu           sync.Mutex
	value        float64
	ramping      bool
	target       float64
	rampStart    time.Duration
	timeConstant time.Duration
}

type gainCurve struct {
	value        float64
	ramping      bool
	target       float64
	rampStart    time.Duration
	timeConstant time.Duration
}

func (c gainCurve) at(t time.Duration) float64 {
	if !c.ramping || t <= c.rampStart {
		return c.value
	}
	if c.timeConstant <= 0 {
		return c.target
	}
	decay := math.Exp(-float64(t-c.rampStart) / float64(c.timeConstant))
	return c.target + (c.value-c.target)*decay
}

func (g *gainNode) curve() gainCurve {
	return gainCurve{
		value:        g.value,
		ramping:      g.ramping,
		target:       g.target,
		rampStart:    g.rampStart,
		timeConstant: g.timeConstant,
	}
}

func (g *gainNode) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.curve().at(g.ctx.CurrentTime())
}

func (g *gainNode) SetValue(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.value = v
	g.ramping = false
}

func (g *gainNode) SetTargetAtTime(target float64, startTime, timeConstant time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.value = g.curve().at(startTime)
	g.ramping = true
	g.target = target
	g.rampStart = startTime
	g.timeConstant = timeConstant
}

// apply scales samples whose first element plays at device frame start
func (g *gainNode) apply(samples [][2]float64, start int64, rate beep.SampleRate) {
	if g == nil || len(samples) == 0 {
		return
	}

	g.mu.Lock()
	curve := g.curve()
	g.mu.Unlock()

	if !curve.ramping {
		if curve.value == 1 {
			return
		}
		for i := range samples {
			samples[i][0] *= curve.value
			samples[i][1] *= curve.value
		}
		return
	}

	for i := range samples {
		v := curve.at(rate.D(int(start) + i))
		samples[i][0] *= v
		samples[i][1] *= v
	}
}
