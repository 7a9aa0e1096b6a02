package mdanimate

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultFrameRate = 60

type frames struct {
	mu      sync.Mutex
	next    Handle
	pending map[Handle]func(time.Time)
}

func (f *frames) RequestFrame(fn func(now time.Time)) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil {
		f.pending = make(map[Handle]func(time.Time))
	}
	f.next++
	f.pending[f.next] = fn
	return f.next
}

func (f *frames) Cancel(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, h)
}

func (f *frames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// take removes and returns the pending callbacks in request order.
func (f *frames) take() []func(time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	handles := make([]Handle, 0, len(f.pending))
	for h := range f.pending {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i] < handles[j]
	})
	fns := make([]func(time.Time), 0, len(handles))
	for _, h := range handles {
		fns = append(fns, f.pending[h])
	}
	f.pending = nil
	return fns
}

// LoopScheduler fires frames from a ticker on the goroutine calling Run.
type LoopScheduler struct {
	frames
	interval time.Duration
}

// NewLoopScheduler returns a scheduler ticking fps times per second.
func NewLoopScheduler(fps int) *LoopScheduler {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return &LoopScheduler{
		interval: time.Second / time.Duration(fps),
	}
}

// Run delivers frames until none are pending or ctx is done.
// Callbacks requesting another frame keep the loop alive.
func (s *LoopScheduler) Run(ctx context.Context) error {
	if s.Pending() == 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, fn := range s.take() {
				fn(now)
			}
			if s.Pending() == 0 {
				return nil
			}
		}
	}
}

// ManualScheduler fires frames only when its clock is advanced.
type ManualScheduler struct {
	frames
	now time.Time
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (s *ManualScheduler) Now() time.Time {
	return s.now
}

// Advance moves the clock by d and fires every frame pending before the call once.
// Frames requested by those callbacks wait for the next Advance.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.now = s.now.Add(d)
	fns := s.take()
	for _, fn := range fns {
		fn(s.now)
	}
	return len(fns)
}

// Drain advances by step until nothing is pending, at most limit times.
func (s *ManualScheduler) Drain(step time.Duration, limit int) int {
	n := 0
	for ; n < limit && s.Pending() > 0; n++ {
		s.Advance(step)
	}
	return n
}
