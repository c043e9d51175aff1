// Package typing owns the ephemeral "is typing" state per (room, identity).
package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultQuietPeriod = 3 * time.Second

type Event struct {
	Room     string
	Identity string
	Typing   bool
}

// Notify receives every state transition. It runs under the debouncer lock so
// transitions for one pair are delivered in order; it must not block or call
// back into the Debouncer.
type Notify func(Event)

type key struct {
	room     string
	identity string
}

type slot struct {
	timer *time.Timer
	gen   uint64
}

type Debouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	slots  map[key]*slot
	gen    uint64
	notify Notify
	log    zerolog.Logger
}

func NewDebouncer(quiet time.Duration, notify Notify, log zerolog.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{
		quiet:  quiet,
		slots:  make(map[key]*slot),
		notify: notify,
		log:    log.With().Str("component", "typing").Logger(),
	}
}

// Start moves the pair to Typing, or resets its expiry if already typing.
// The superseded timer is stopped and its generation invalidated.
func (d *Debouncer) Start(room, identity string) {
	k := key{room: room, identity: identity}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.slots[k]
	if ok {
		s.timer.Stop()
	} else {
		s = &slot{}
		d.slots[k] = s
	}
	d.gen++
	gen := d.gen
	s.gen = gen
	s.timer = time.AfterFunc(d.quiet, func() { d.expire(k, gen) })

	d.emit(Event{Room: room, Identity: identity, Typing: true})
}

// Stop moves the pair to Idle. Stopping an idle pair emits nothing.
func (d *Debouncer) Stop(room, identity string) {
	k := key{room: room, identity: identity}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.slots[k]
	if !ok {
		return
	}
	s.timer.Stop()
	delete(d.slots, k)
	d.emit(Event{Room: room, Identity: identity, Typing: false})
}

// Clear forces every room of identity back to Idle. Used on disconnect.
func (d *Debouncer) Clear(identity string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for k, s := range d.slots {
		if k.identity != identity {
			continue
		}
		s.timer.Stop()
		delete(d.slots, k)
		d.emit(Event{Room: k.room, Identity: identity, Typing: false})
		n++
	}
	return n
}

func (d *Debouncer) IsTyping(room, identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[key{room: room, identity: identity}]
	return ok
}

// Len is the number of live timers.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// Close cancels every timer without emitting.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, s := range d.slots {
		s.timer.Stop()
		delete(d.slots, k)
	}
}

func (d *Debouncer) expire(k key, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.slots[k]
	if !ok || s.gen != gen {
		// superseded by a later Start or already stopped
		return
	}
	delete(d.slots, k)
	d.log.Debug().Str("room", k.room).Str("identity", k.identity).Msg("typing expired")
	d.emit(Event{Room: k.room, Identity: k.identity, Typing: false})
}

func (d *Debouncer) emit(e Event) {
	if d.notify != nil {
		d.notify(e)
	}
}
