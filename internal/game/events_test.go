/*
Package game
File: events_test.go
Description: Timed-event queue ordering and cancellation.
*/

package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueFiresInDeadlineOrder(t *testing.T) {
	q := newEventQueue()
	base := time.UnixMilli(1_000_000)

	var fired []string
	q.schedule(base.Add(300*time.Millisecond), func(time.Time) { fired = append(fired, "c") })
	q.schedule(base.Add(100*time.Millisecond), func(time.Time) { fired = append(fired, "a") })
	q.schedule(base.Add(200*time.Millisecond), func(time.Time) { fired = append(fired, "b") })

	q.fireDue(base.Add(150 * time.Millisecond))
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 2, q.pending())

	q.fireDue(base.Add(time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Zero(t, q.pending())
}

func TestEventQueueSameDeadlineFiresInArmingOrder(t *testing.T) {
	q := newEventQueue()
	at := time.UnixMilli(1_000_000)

	var fired []int
	for i := 0; i < 5; i++ {
		n := i
		q.schedule(at, func(time.Time) { fired = append(fired, n) })
	}
	q.fireDue(at)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, fired)
}

func TestEventQueueCancel(t *testing.T) {
	q := newEventQueue()
	base := time.UnixMilli(1_000_000)

	var fired []string
	q.schedule(base.Add(time.Millisecond), func(time.Time) { fired = append(fired, "keep") })
	ev := q.schedule(base.Add(2*time.Millisecond), func(time.Time) { fired = append(fired, "dropped") })
	ev.Cancel()
	assert.Equal(t, 1, q.pending())

	q.fireDue(base.Add(time.Second))
	assert.Equal(t, []string{"keep"}, fired)

	// Cancelling a nil handle or an already-fired event is harmless.
	var none *timedEvent
	assert.NotPanics(t, func() { none.Cancel() })
	assert.NotPanics(t, func() { ev.Cancel() })
}

func TestEventQueueDeadlineIsInclusive(t *testing.T) {
	q := newEventQueue()
	at := time.UnixMilli(1_000_000)

	fired := false
	q.schedule(at, func(time.Time) { fired = true })

	q.fireDue(at.Add(-time.Nanosecond))
	assert.False(t, fired)
	q.fireDue(at)
	assert.True(t, fired)
}

func TestEventQueueEventsScheduledDuringFire(t *testing.T) {
	q := newEventQueue()
	base := time.UnixMilli(1_000_000)

	var fired []string
	q.schedule(base, func(now time.Time) {
		fired = append(fired, "first")
		// A follow-up already due fires in the same drain.
		q.schedule(now, func(time.Time) { fired = append(fired, "chained") })
	})
	q.fireDue(base)
	assert.Equal(t, []string{"first", "chained"}, fired)
}
