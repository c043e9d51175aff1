package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(typing bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Typing == typing {
			n++
		}
	}
	return n
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

const quiet = 60 * time.Millisecond

func TestDebouncer_Start_Then_Silence_Stops_Once(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	d := NewDebouncer(quiet, rec.notify, zerolog.Nop())

	// When guestA starts typing and goes quiet
	d.Start("global", "guestA")
	req.True(d.IsTyping("global", "guestA"))

	// Then exactly one stop arrives after the quiet period
	req.Eventually(func() bool { return rec.count(false) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * quiet)
	req.Equal(1, rec.count(false))
	req.Equal(Event{Room: "global", Identity: "guestA", Typing: false}, rec.last())
	req.Zero(d.Len())
}

func TestDebouncer_Refresh_Keeps_Typing(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	d := NewDebouncer(quiet, rec.notify, zerolog.Nop())

	// When guestA refreshes well inside the quiet window for ten rounds
	for i := 0; i < 10; i++ {
		d.Start("global", "guestA")
		time.Sleep(quiet / 3)
	}

	// Then no stop was emitted and only one timer is alive
	req.Zero(rec.count(false))
	req.Equal(10, rec.count(true))
	req.Equal(1, d.Len())

	// And silence eventually stops it exactly once
	req.Eventually(func() bool { return rec.count(false) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * quiet)
	req.Equal(1, rec.count(false))
}

func TestDebouncer_Superseded_Timer_Does_Not_Fire(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	d := NewDebouncer(quiet, rec.notify, zerolog.Nop())

	// Given a start, refreshed just before the first timer would expire
	d.Start("global", "guestA")
	time.Sleep(quiet * 2 / 3)
	d.Start("global", "guestA")

	// When the first timer's deadline passes
	time.Sleep(quiet * 2 / 3)

	// Then the pair is still typing
	req.Zero(rec.count(false))
	req.True(d.IsTyping("global", "guestA"))
}

func TestDebouncer_Stop(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	d := NewDebouncer(quiet, rec.notify, zerolog.Nop())

	// Stopping an idle pair is silent
	d.Stop("global", "guestA")
	req.Zero(rec.count(false))

	d.Start("global", "guestA")
	d.Stop("global", "guestA")
	d.Stop("global", "guestA")

	req.Equal(1, rec.count(false))
	req.Zero(d.Len())

	// And the cancelled timer never fires
	time.Sleep(2 * quiet)
	req.Equal(1, rec.count(false))
}

func TestDebouncer_Clear_All_Rooms(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	d := NewDebouncer(time.Minute, rec.notify, zerolog.Nop())

	d.Start("global", "guestA")
	d.Start("random", "guestA")
	d.Start("global", "guestB")

	// When guestA disconnects
	n := d.Clear("guestA")

	// Then both of its rooms stop and guestB is untouched
	req.Equal(2, n)
	req.Equal(2, rec.count(false))
	req.Equal(1, d.Len())
	req.True(d.IsTyping("global", "guestB"))
	d.Close()
	req.Zero(d.Len())
}
