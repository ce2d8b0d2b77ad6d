package patchbay

import (
	"time"

	"github.com/birdayz/patchbay/plink"
	"github.com/go-logr/logr"
)

// Option is a function that configures a Router
type Option func(*Router)

// WithLogr sets the logger for the router
var WithLogr = func(log logr.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

// WithSendingWindow sets how long links created by NewLink stay lit after a
// message passed
var WithSendingWindow = func(d time.Duration) Option {
	return func(r *Router) {
		r.window = d
	}
}

// WithClock sets the clock handed to links created by NewLink
var WithClock = func(clock plink.Clock) Option {
	return func(r *Router) {
		r.clock = clock
	}
}

// WithOnCycleDetected registers a listener for the first cycle appearing
var WithOnCycleDetected = func(fn func()) Option {
	return func(r *Router) {
		r.onDetected = append(r.onDetected, fn)
	}
}

// WithOnCycleCleared registers a listener for the last cycle disappearing
var WithOnCycleCleared = func(fn func()) Option {
	return func(r *Router) {
		r.onCleared = append(r.onCleared, fn)
	}
}

// LoopOption configures a Loop
type LoopOption func(*Loop)

// WithLoopLogr sets the logger used for panics recovered in the loop
var WithLoopLogr = func(log logr.Logger) LoopOption {
	return func(l *Loop) {
		l.log = log
	}
}

// WithMailboxSize sets how many submitted functions may wait before Submit
// blocks
var WithMailboxSize = func(n int) LoopOption {
	return func(l *Loop) {
		l.size = n
	}
}
