// Package plink holds the per-wire state the UI renders: a transient sending
// pulse and the persistent in-cycle flag.
package plink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultSendingWindow is how long a link stays lit after a message passed.
const DefaultSendingWindow = 100 * time.Millisecond

// Endpoint is one side of a link: a machine id and one of its channels.
type Endpoint struct {
	Machine string
	Channel int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Machine, e.Channel)
}

// Option configures a Link.
type Option func(*Link)

// WithID sets the link id. Without it a random UUID is used.
var WithID = func(id string) Option {
	return func(l *Link) {
		l.id = id
	}
}

// WithClock sets the clock used for the sending pulse.
var WithClock = func(clock Clock) Option {
	return func(l *Link) {
		l.clock = clock
	}
}

// WithSendingWindow sets how long the sending flag stays up.
var WithSendingWindow = func(d time.Duration) Option {
	return func(l *Link) {
		l.window = d
	}
}

// Link is the handle of one wire. Sending and InCycle are safe to read from
// any goroutine.
type Link struct {
	id     string
	clock  Clock
	window time.Duration

	inCycle atomic.Bool

	mu       sync.Mutex
	source   Endpoint
	target   Endpoint
	attached bool
	sending  bool
	timer    Timer
	refresh  func()
}

// New creates a detached link.
func New(opts ...Option) *Link {
	l := &Link{
		clock:  RealClock,
		window: DefaultSendingWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.id == "" {
		l.id = uuid.NewString()
	}
	return l
}

// ID returns the unique link id.
func (l *Link) ID() string {
	return l.id
}

// Attach records the endpoints the link was connected to.
func (l *Link) Attach(source, target Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.source = source
	l.target = target
	l.attached = true
}

// Endpoints returns the attached endpoints. ok is false before Attach.
func (l *Link) Endpoints() (source, target Endpoint, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.source, l.target, l.attached
}

// OnRefresh installs the callback fired whenever Sending or InCycle change.
func (l *Link) OnRefresh(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refresh = fn
}

// Sending reports whether a message passed within the sending window.
func (l *Link) Sending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sending
}

// SetSending raises or lowers the pulse. Raising re-arms the single timer
// of the link, so a steady stream keeps it lit until the stream stops.
func (l *Link) SetSending(sending bool) {
	l.mu.Lock()
	changed := l.sending != sending
	l.sending = sending
	if sending {
		if l.timer == nil {
			l.timer = l.clock.AfterFunc(l.window, l.expire)
		} else {
			l.timer.Reset(l.window)
		}
	} else if l.timer != nil {
		l.timer.Stop()
	}
	refresh := l.refresh
	l.mu.Unlock()

	if changed && refresh != nil {
		refresh()
	}
}

func (l *Link) expire() {
	l.SetSending(false)
}

// InCycle reports whether the link currently closes a feedback loop.
func (l *Link) InCycle() bool {
	return l.inCycle.Load()
}

// SetInCycle is called by the router after every structural change.
func (l *Link) SetInCycle(inCycle bool) {
	if l.MarkInCycle(inCycle) {
		l.Refresh()
	}
}

// MarkInCycle stores the flag without firing the refresh hook and reports
// whether it changed. The router marks links under its own lock and calls
// Refresh once the lock is released.
func (l *Link) MarkInCycle(inCycle bool) bool {
	return l.inCycle.Swap(inCycle) != inCycle
}

// Refresh fires the refresh hook, if any.
func (l *Link) Refresh() {
	l.mu.Lock()
	refresh := l.refresh
	l.mu.Unlock()
	if refresh != nil {
		refresh()
	}
}

// Close stops the pulse timer. The link must not be reused afterwards.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.sending = false
}

func (l *Link) String() string {
	source, target, ok := l.Endpoints()
	if !ok {
		return l.id
	}
	return fmt.Sprintf("%s (%s -> %s)", l.id, source, target)
}
