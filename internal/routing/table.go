package routing

import (
	"errors"
	"fmt"

	"github.com/birdayz/patchbay/pmessage"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var ErrRouteExists = errors.New("route already exists")

// Deliver hands one message to one target input channel.
type Deliver func(msg pmessage.Message)

// Route is one entry of the table: a callback bound to a target channel.
type Route struct {
	Target        string
	TargetChannel int
	LinkID        string
	Deliver       Deliver
}

// fanout holds the routes of one (source, channel). Lookup goes through the
// nested target -> channel map; order keeps registration order for delivery.
type fanout struct {
	targets map[string]map[int]*Route
	order   []*Route
}

// Table maps sourceID -> channel -> targetID -> targetChannel -> Route.
//
// THREAD SAFETY: Table is NOT thread-safe. The router guards it with its own
// lock and never holds that lock while a Deliver runs.
type Table struct {
	sources map[string]map[int]*fanout
	size    int
}

func NewTable() *Table {
	return &Table{sources: make(map[string]map[int]*fanout)}
}

// Add installs r under (source, channel), creating the nested path on demand.
func (t *Table) Add(source string, channel int, r *Route) error {
	channels, ok := t.sources[source]
	if !ok {
		channels = make(map[int]*fanout)
		t.sources[source] = channels
	}
	f, ok := channels[channel]
	if !ok {
		f = &fanout{targets: make(map[string]map[int]*Route)}
		channels[channel] = f
	}
	byChannel, ok := f.targets[r.Target]
	if !ok {
		byChannel = make(map[int]*Route)
		f.targets[r.Target] = byChannel
	}
	if _, exists := byChannel[r.TargetChannel]; exists {
		return fmt.Errorf("%w: %s:%d -> %s:%d", ErrRouteExists, source, channel, r.Target, r.TargetChannel)
	}

	byChannel[r.TargetChannel] = r
	f.order = append(f.order, r)
	t.size++
	return nil
}

// Remove deletes one route. Empty levels are pruned so enumeration never
// reports a dead path.
func (t *Table) Remove(source string, channel int, target string, targetChannel int) bool {
	channels, ok := t.sources[source]
	if !ok {
		return false
	}
	f, ok := channels[channel]
	if !ok {
		return false
	}
	byChannel, ok := f.targets[target]
	if !ok {
		return false
	}
	r, ok := byChannel[targetChannel]
	if !ok {
		return false
	}

	delete(byChannel, targetChannel)
	if len(byChannel) == 0 {
		delete(f.targets, target)
	}
	if idx := slices.Index(f.order, r); idx >= 0 {
		f.order = slices.Delete(f.order, idx, idx+1)
	}
	if len(f.order) == 0 {
		delete(channels, channel)
	}
	if len(channels) == 0 {
		delete(t.sources, source)
	}
	t.size--
	return true
}

// Lookup returns the route for one exact endpoint pair.
func (t *Table) Lookup(source string, channel int, target string, targetChannel int) (*Route, bool) {
	f := t.fanout(source, channel)
	if f == nil {
		return nil, false
	}
	r, ok := f.targets[target][targetChannel]
	return r, ok
}

// Routes returns a snapshot of the routes of (source, channel) in
// registration order. The snapshot stays valid while the table changes.
func (t *Table) Routes(source string, channel int) []*Route {
	f := t.fanout(source, channel)
	if f == nil {
		return nil
	}
	return slices.Clone(f.order)
}

// Channels returns the channels of source that have routes, ascending.
func (t *Table) Channels(source string) []int {
	channels := maps.Keys(t.sources[source])
	slices.Sort(channels)
	return channels
}

// Targets returns the distinct targets of (source, channel) in the order
// they were first wired.
func (t *Table) Targets(source string, channel int) []string {
	f := t.fanout(source, channel)
	if f == nil {
		return nil
	}
	var out []string
	for _, r := range f.order {
		if !slices.Contains(out, r.Target) {
			out = append(out, r.Target)
		}
	}
	return out
}

// Reachable returns every target wired to any channel of source.
func (t *Table) Reachable(source string) []string {
	var out []string
	for _, ch := range t.Channels(source) {
		for _, target := range t.Targets(source, ch) {
			if !slices.Contains(out, target) {
				out = append(out, target)
			}
		}
	}
	return out
}

// Sources returns every source with at least one route, sorted.
func (t *Table) Sources() []string {
	sources := maps.Keys(t.sources)
	slices.Sort(sources)
	return sources
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return t.size
}

func (t *Table) fanout(source string, channel int) *fanout {
	channels, ok := t.sources[source]
	if !ok {
		return nil
	}
	return channels[channel]
}

// Forward delivers msg along a snapshot of routes, in order.
func Forward(routes []*Route, msg pmessage.Message) {
	for _, r := range routes {
		r.Deliver(msg)
	}
}
