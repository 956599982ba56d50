package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

type sourceNode struct {
	ctx    *SpeakerContext
	buffer *pcmBuffer

	mu      sync.Mutex
	gain    *gainNode
	onEnded func()
	started bool
	stopped atomic.Bool
}

func (n *sourceNode) SetOnEnded(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEnded = fn
}

func (n *sourceNode) Connect(gain GainNode) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if g, ok := gain.(*gainNode); ok {
		n.gain = g
	}
}

func (n *sourceNode) Start(when, offset, duration time.Duration) {
	n.mu.Lock()
	if n.started || n.stopped.Load() || n.buffer == nil {
		n.mu.Unlock()
		return
	}
	n.started = true
	gain := n.gain
	n.mu.Unlock()

	rate := n.ctx.sampleRate
	length := n.buffer.buf.Len()
	from := clampFrames(rate.N(offset), length)
	to := clampFrames(from+rate.N(duration), length)

	delay := 0
	if now := n.ctx.CurrentTime(); when > now {
		delay = rate.N(when - now)
	}

	n.ctx.graph.add(&nodeStreamer{
		node:  n,
		body:  n.buffer.buf.Streamer(from, to),
		gain:  gain,
		rate:  rate,
		delay: delay,
	})
}

func (n *sourceNode) Stop() {
	n.stopped.Store(true)
}

// ended fires the natural-end callback off the audio thread
func (n *sourceNode) ended() {
	if n.stopped.Load() {
		return
	}

	n.mu.Lock()
	fn := n.onEnded
	n.mu.Unlock()

	if fn != nil {
		go fn()
	}
}

func clampFrames(n, length int) int {
	if n < 0 {
		return 0
	}
	if n > length {
		return length
	}
	return n
}

// nodeStreamer renders one started source node inside the graph. frame is the
// device frame of the next sample it produces.
type nodeStreamer struct {
	node     *sourceNode
	body     beep.Streamer
	gain     *gainNode
	rate     beep.SampleRate
	delay    int
	frame    int64
	finished bool
}

func (s *nodeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.finished || s.node.stopped.Load() {
		return 0, false
	}

	for n < len(samples) && s.delay > 0 {
		samples[n] = [2]float64{}
		s.delay--
		s.frame++
		n++
	}
	if n == len(samples) {
		return n, true
	}

	m, more := s.body.Stream(samples[n:])
	s.gain.apply(samples[n:n+m], s.frame, s.rate)
	s.frame += int64(m)
	n += m

	if !more || n < len(samples) {
		s.finished = true
		s.node.ended()
	}
	return n, n > 0
}

func (s *nodeStreamer) Err() error {
	return s.body.Err()
}
