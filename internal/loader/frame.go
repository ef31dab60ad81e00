package loader

import "sync"

// Frame is the render-pass boundary of a page: work queued with AfterRender runs on the next
// Flush, after the mutation that scheduled it has completed.
type Frame struct {
	mu      sync.Mutex
	pending []func()
	passes  int
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{}
}

// AfterRender queues fn for the next pass.
func (f *Frame) AfterRender(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.pending = append(f.pending, fn)
	f.mu.Unlock()
}

// Flush runs one render pass: every queued callback in FIFO order. Callbacks queued during the
// pass wait for the next one. It returns the number of callbacks run.
func (f *Frame) Flush() int {
	f.mu.Lock()
	queue := f.pending
	f.pending = nil
	f.passes++
	f.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Pending reports how many callbacks wait for the next pass.
func (f *Frame) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Passes reports how many render passes have run.
func (f *Frame) Passes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}
