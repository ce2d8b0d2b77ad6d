package patchbay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birdayz/patchbay/internal/routing"
	"github.com/birdayz/patchbay/pgraph"
	"github.com/birdayz/patchbay/plink"
	"github.com/birdayz/patchbay/pmachine"
	"github.com/birdayz/patchbay/pmessage"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// Router owns the wiring of a patch: the routing table, the edge index used
// for cycle detection and the link handles.
//
// Messages are delivered synchronously and depth-first on the emitting
// goroutine. Structural changes may come from any goroutine; listeners and
// link refresh hooks always run without the router lock held, so they may
// call back into the Router.
type Router struct {
	log    logr.Logger
	clock  plink.Clock
	window time.Duration

	mu         sync.RWMutex
	table      *routing.Table
	graph      *pgraph.Graph
	links      map[string]*connection
	order      []string
	cycle      bool
	onDetected []func()
	onCleared  []func()

	delivered  atomic.Uint64
	dropped    atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

type connection struct {
	link   *plink.Link
	source plink.Endpoint
	target plink.Endpoint
}

// Stats counts what happened to messages handed to delivery callbacks.
type Stats struct {
	// Delivered messages reached Receive and returned without error.
	Delivered uint64
	// Dropped messages hit a disabled target.
	Dropped uint64
	// Suppressed messages would have crossed a link inside a cycle.
	Suppressed uint64
	// Failed messages made Receive return an error or panic.
	Failed uint64
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		log:    logr.Discard(),
		clock:  plink.RealClock,
		window: plink.DefaultSendingWindow,
		table:  routing.NewTable(),
		graph:  pgraph.NewGraph(),
		links:  make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewLink creates a link using the clock and sending window of the router.
func (r *Router) NewLink(opts ...plink.Option) *plink.Link {
	defaults := []plink.Option{plink.WithClock(r.clock), plink.WithSendingWindow(r.window)}
	return plink.New(append(defaults, opts...)...)
}

// Connect wires fromChannel of source to toChannel of target through link.
// Afterwards every message source emits on fromChannel is delivered to
// target, unless target is disabled or link is part of a cycle.
func (r *Router) Connect(source pmachine.Source, target pmachine.Target, fromChannel, toChannel int, link *plink.Link) error {
	if source == nil || target == nil || link == nil {
		return ErrNilEndpoint
	}
	if fromChannel < 0 || toChannel < 0 {
		return fmt.Errorf("%w: %d -> %d", ErrInvalidChannel, fromChannel, toChannel)
	}

	from := plink.Endpoint{Machine: source.ID(), Channel: fromChannel}
	to := plink.Endpoint{Machine: target.ID(), Channel: toChannel}

	r.mu.Lock()
	if _, ok := r.links[link.ID()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLinkExists, link.ID())
	}
	if _, ok := r.table.Lookup(from.Machine, from.Channel, to.Machine, to.Channel); ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateLink, from, to)
	}

	edge := &pgraph.Edge{
		ID:          pgraph.EdgeID(link.ID()),
		From:        pgraph.NodeID(from.Machine),
		FromChannel: from.Channel,
		To:          pgraph.NodeID(to.Machine),
		ToChannel:   to.Channel,
	}
	if err := r.graph.AddEdge(edge); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to index link %s: %w", link.ID(), err)
	}
	route := &routing.Route{
		Target:        to.Machine,
		TargetChannel: to.Channel,
		LinkID:        link.ID(),
		Deliver:       r.deliverer(from, to, target, link),
	}
	if err := r.table.Add(from.Machine, from.Channel, route); err != nil {
		_, _ = r.graph.RemoveEdge(edge.ID)
		r.mu.Unlock()
		return fmt.Errorf("failed to route link %s: %w", link.ID(), err)
	}

	link.Attach(from, to)
	r.links[link.ID()] = &connection{link: link, source: from, target: to}
	r.order = append(r.order, link.ID())
	change := r.recomputeLocked()
	r.mu.Unlock()

	sourceID := from.Machine
	source.SetEmit(func(msg pmessage.Message, channel int) {
		r.Dispatch(sourceID, channel, msg)
	})

	r.log.V(1).Info("Connected", "link", link.ID(), "source", from.String(), "target", to.String())
	r.settle(change)
	return nil
}

// ConnectAll wires every output channel of source to toChannel of target.
// Channels that are already wired to that input are skipped. links supplies
// a fresh link per channel; when nil, NewLink is used.
func (r *Router) ConnectAll(source pmachine.Source, target pmachine.Target, toChannel int, links func() *plink.Link) ([]*plink.Link, error) {
	if source == nil || target == nil {
		return nil, ErrNilEndpoint
	}
	if links == nil {
		links = func() *plink.Link { return r.NewLink() }
	}

	var (
		created []*plink.Link
		errs    error
	)
	for _, ch := range source.OutputChannels() {
		if r.HasLink(source.ID(), ch, target.ID(), toChannel) {
			continue
		}
		link := links()
		if err := r.Connect(source, target, ch, toChannel, link); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %d: %w", ch, err))
			continue
		}
		created = append(created, link)
	}
	return created, errs
}

// Disconnect removes link. Unknown links are ignored.
func (r *Router) Disconnect(link *plink.Link) {
	if link == nil {
		return
	}

	r.mu.Lock()
	conn, ok := r.disconnectLocked(link.ID())
	if !ok {
		r.mu.Unlock()
		return
	}
	change := r.recomputeLocked()
	r.mu.Unlock()

	r.release(conn)
	r.settle(change)
}

// DisconnectMachine removes every link from or to the machine id and returns
// them in registration order.
func (r *Router) DisconnectMachine(id string) []*plink.Link {
	r.mu.Lock()
	var removed []*connection
	for _, linkID := range slices.Clone(r.order) {
		conn := r.links[linkID]
		if conn.source.Machine != id && conn.target.Machine != id {
			continue
		}
		if gone, ok := r.disconnectLocked(linkID); ok {
			removed = append(removed, gone)
		}
	}
	if len(removed) == 0 {
		r.mu.Unlock()
		return nil
	}
	change := r.recomputeLocked()
	r.mu.Unlock()

	links := make([]*plink.Link, 0, len(removed))
	for _, conn := range removed {
		r.release(conn)
		links = append(links, conn.link)
	}
	r.settle(change)
	return links
}

// HasLink reports whether the two endpoints are wired.
func (r *Router) HasLink(sourceID string, fromChannel int, targetID string, toChannel int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.table.Lookup(sourceID, fromChannel, targetID, toChannel)
	return ok
}

// Links returns the connected links in registration order.
func (r *Router) Links() []*plink.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	links := make([]*plink.Link, 0, len(r.order))
	for _, id := range r.order {
		links = append(links, r.links[id].link)
	}
	return links
}

// Link returns the connected link with the given id.
func (r *Router) Link(id string) (*plink.Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.links[id]
	if !ok {
		return nil, false
	}
	return conn.link, true
}

// HasCycle reports whether the patch currently contains a feedback loop.
func (r *Router) HasCycle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycle
}

// Cycles returns the machines of every feedback loop, one slice per loop.
func (r *Router) Cycles() [][]string {
	r.mu.RLock()
	report := r.graph.DetectCycles()
	r.mu.RUnlock()

	out := make([][]string, 0, len(report.Components))
	for _, comp := range report.Components {
		members := make([]string, len(comp))
		for i, id := range comp {
			members[i] = string(id)
		}
		out = append(out, members)
	}
	return out
}

// Dispatch delivers msg to every target wired to channel of sourceID, in the
// order the links were connected. Sources bound through Connect call it from
// their emit function.
func (r *Router) Dispatch(sourceID string, channel int, msg pmessage.Message) {
	r.mu.RLock()
	routes := r.table.Routes(sourceID, channel)
	r.mu.RUnlock()

	routing.Forward(routes, msg)
}

// OnCycleDetected registers fn to run when the patch goes from acyclic to
// cyclic.
func (r *Router) OnCycleDetected(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDetected = append(r.onDetected, fn)
}

// OnCycleCleared registers fn to run when the last cycle is broken.
func (r *Router) OnCycleCleared(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCleared = append(r.onCleared, fn)
}

func (r *Router) Stats() Stats {
	return Stats{
		Delivered:  r.delivered.Load(),
		Dropped:    r.dropped.Load(),
		Suppressed: r.suppressed.Load(),
		Failed:     r.failed.Load(),
	}
}

func (r *Router) deliverer(from, to plink.Endpoint, target pmachine.Target, link *plink.Link) routing.Deliver {
	return func(msg pmessage.Message) {
		if !target.Enabled() {
			r.dropped.Add(1)
			return
		}
		if link.InCycle() {
			r.suppressed.Add(1)
			return
		}

		result, err := receive(target, msg.Clone(), to.Channel)
		if err != nil {
			r.failed.Add(1)
			r.log.Error(err, "Delivery failed", "link", link.ID(), "source", from.String(), "target", to.String(), "message", msg.String())
			return
		}
		r.delivered.Add(1)
		if result == pmachine.Processed {
			link.SetSending(true)
		}
	}
}

func receive(target pmachine.Target, msg pmessage.Message, channel int) (result pmachine.MessageResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrTargetPanic, p)
		}
	}()
	return target.Receive(msg, channel)
}

func (r *Router) disconnectLocked(id string) (*connection, bool) {
	conn, ok := r.links[id]
	if !ok {
		return nil, false
	}
	r.table.Remove(conn.source.Machine, conn.source.Channel, conn.target.Machine, conn.target.Channel)
	_, _ = r.graph.RemoveEdge(pgraph.EdgeID(id))
	delete(r.links, id)
	if idx := slices.Index(r.order, id); idx >= 0 {
		r.order = slices.Delete(r.order, idx, idx+1)
	}
	return conn, true
}

// release resets a link that left the patch.
func (r *Router) release(conn *connection) {
	conn.link.Close()
	if conn.link.MarkInCycle(false) {
		conn.link.Refresh()
	}
	r.log.V(1).Info("Disconnected", "link", conn.link.ID(), "source", conn.source.String(), "target", conn.target.String())
}

// change is the outcome of a recompute, applied by settle once the lock is
// released.
type change struct {
	refresh   []*plink.Link
	detected  bool
	cleared   bool
	report    pgraph.CycleReport
	listeners []func()
}

func (r *Router) recomputeLocked() change {
	report := r.graph.DetectCycles()

	var c change
	c.report = report
	for _, id := range r.order {
		link := r.links[id].link
		if link.MarkInCycle(report.Contains(pgraph.EdgeID(id))) {
			c.refresh = append(c.refresh, link)
		}
	}

	prev := r.cycle
	r.cycle = report.Found()
	switch {
	case !prev && r.cycle:
		c.detected = true
		c.listeners = slices.Clone(r.onDetected)
	case prev && !r.cycle:
		c.cleared = true
		c.listeners = slices.Clone(r.onCleared)
	}
	return c
}

func (r *Router) settle(c change) {
	for _, link := range c.refresh {
		link.Refresh()
	}
	switch {
	case c.detected:
		r.log.Info("Feedback loop detected, suppressing delivery on cyclic links", "cycles", c.report.String())
	case c.cleared:
		r.log.Info("Feedback loop cleared")
	}
	for _, fn := range c.listeners {
		fn()
	}
}
