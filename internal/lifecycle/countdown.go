package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Remaining is the time left before a deadline at minute granularity.
type Remaining struct {
	Days    int           `json:"days"`
	Hours   int           `json:"hours"`
	Minutes int           `json:"minutes"`
	Passed  bool          `json:"passed"`
	Left    time.Duration `json:"-"`
}

func RemainingUntil(deadline, now time.Time) Remaining {
	left := deadline.Sub(now)
	if left <= 0 {
		return Remaining{Passed: true}
	}
	return Remaining{
		Days:    int(left / (24 * time.Hour)),
		Hours:   int(left/time.Hour) % 24,
		Minutes: int(left/time.Minute) % 60,
		Left:    left,
	}
}

func (r Remaining) String() string {
	if r.Passed {
		return "Contest ended"
	}
	return fmt.Sprintf("%dd %dh %dm", r.Days, r.Hours, r.Minutes)
}

// Ticker is a running countdown. C is closed when the countdown stops,
// either after delivering the passed value or on Stop/context cancel.
type Ticker struct {
	C <-chan Remaining

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Stop cancels the countdown and waits for its goroutine to exit. Safe to
// call more than once.
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Done is closed once the countdown goroutine has exited.
func (t *Ticker) Done() <-chan struct{} { return t.done }

// StartCountdown recomputes deadline-now every interval. The first value is
// delivered immediately. On the first non-positive difference it calls
// onExpire (if set), delivers one passed value and stops ticking.
func StartCountdown(ctx context.Context, clock Clock, deadline time.Time, every time.Duration, onExpire func()) *Ticker {
	out := make(chan Remaining, 1)
	t := &Ticker{
		C:    out,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer close(out)

		ticks, stopTicks := clock.NewTicker(every)
		defer stopTicks()

		emit := func() bool {
			r := RemainingUntil(deadline, clock.Now())
			if r.Passed && onExpire != nil {
				onExpire()
			}
			select {
			case out <- r:
			case <-t.stop:
				return false
			case <-ctx.Done():
				return false
			}
			return !r.Passed
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ticks:
				if !emit() {
					return
				}
			case <-t.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return t
}
