package videosync

import (
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// Lease owns the liveness of one surface. It probes alive every interval
// and calls expire exactly once when the probe fails. Nothing else tears
// a surface down on external closure.
type Lease struct {
	clk      contracts.Clock
	interval time.Duration
	alive    func() bool
	expire   func()
	timer    contracts.Timer
	done     bool
}

// NewLease starts probing immediately.
func NewLease(clk contracts.Clock, interval time.Duration, alive func() bool, expire func()) *Lease {
	l := &Lease{clk: clk, interval: interval, alive: alive, expire: expire}
	l.timer = clk.AfterFunc(interval, l.check)
	return l
}

func (l *Lease) check() {
	if l.done {
		return
	}
	if !l.alive() {
		l.done = true
		l.expire()
		return
	}
	l.timer = l.clk.AfterFunc(l.interval, l.check)
}

// Stop ends probing without calling expire.
func (l *Lease) Stop() {
	if l == nil || l.done {
		return
	}
	l.done = true
	if l.timer != nil {
		l.timer.Stop()
	}
}

// Active reports whether the lease is still probing.
func (l *Lease) Active() bool {
	return !l.done
}
