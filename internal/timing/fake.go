package timing

import (
	"sort"
	"sync"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// Fake is a manually advanced clock. Callbacks run synchronously inside
// Advance on the caller's goroutine, in due-time order.
type Fake struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*fakeTimer

	// Lateness, when set, delays every timer with a delay > 0 by the returned amount.
	Lateness func() time.Duration
}

// NewFake creates a fake clock at time zero.
func NewFake() *Fake {
	return &Fake{}
}

// Now returns the fake time.
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn at Now()+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) contracts.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		d = 0
	}
	if d > 0 && f.Lateness != nil {
		d += f.Lateness()
	}
	f.seq++
	t := &fakeTimer{clock: f, when: f.now + d, seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return t
}

// Advance moves time forward by d, running every callback that falls due,
// including callbacks scheduled by callbacks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		t := f.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	if f.now < target {
		f.now = target
	}
	f.mu.Unlock()
}

// Flush runs callbacks that are due now without advancing time.
func (f *Fake) Flush() {
	f.Advance(0)
}

// Pending reports the number of scheduled callbacks.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Fake) popDue(target time.Duration) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	sort.Slice(f.pending, func(i, j int) bool {
		if f.pending[i].when == f.pending[j].when {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].when < f.pending[j].when
	})
	t := f.pending[0]
	if t.when > target {
		return nil
	}
	f.pending = f.pending[1:]
	if t.when > f.now {
		f.now = t.when
	}
	return t
}

type fakeTimer struct {
	clock *Fake
	when  time.Duration
	seq   uint64
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p == t {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}
	return false
}
