package stream

import "sync"

// ProgressLog is the ordered list of status steps for the in-flight
// request. Safe for concurrent observation while the stream is live.
type ProgressLog struct {
	mu    sync.Mutex
	steps []string
}

func NewProgressLog() *ProgressLog {
	return &ProgressLog{}
}

func (p *ProgressLog) Append(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step)
}

// Steps returns a snapshot of the steps recorded so far.
func (p *ProgressLog) Steps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *ProgressLog) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// Drain returns the recorded steps and clears the log for the next
// request.
func (p *ProgressLog) Drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.steps
	p.steps = nil
	return out
}
