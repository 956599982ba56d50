package multitrack

import "sync"

// dispatcher delivers callbacks one at a time in the order they were queued.
// A callback queued while another is running is delivered once the running
// one returns, so listeners may call back into the component that notified
// them.
type dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, fn)
}

// flush delivers queued callbacks unless a delivery is already in progress
func (d *dispatcher) flush() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()

		d.mu.Lock()
	}

	d.draining = false
	d.queue = nil
	d.mu.Unlock()
}
