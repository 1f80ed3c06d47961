package internal

// Trampoline runs continuations iteratively instead of recursively.
//
// A continuation handed to Do while another one is running on the same
// trampoline is queued and picked up by the outer Do once the running one returns.
type Trampoline struct {
	running bool
	queue   []func()
}

// Do runs fn, or queues it when the trampoline is already running
func (t *Trampoline) Do(fn func()) {
	t.queue = append(t.queue, fn)
	if t.running {
		return
	}
	t.running = true
	defer func() { t.running = false }()

	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]
		next()
	}
}
