/*
Package schedule manages delayed, interval and repeated executions keyed by id.

# Overview

A Scheduler holds at most one timer record per id. Every record sits in a
min-heap ordered by due time, and a single clock wait is armed for the
earliest record. When it wakes, every due record executes, its remaining
count is decremented and it is either rescheduled or removed.

	s := schedule.New(schedule.WithClock(clk))
	defer s.Close()

	info, err := s.Keep(schedule.Entry{
	    ID:       "heartbeat",
	    Delay:    150 * time.Millisecond,
	    Interval: 250 * time.Millisecond,
	    Repeat:   schedule.Times(3),
	    Callback: func(ctx context.Context, f schedule.Fire) {
	        fmt.Println("tick", f.Execution)
	    },
	})

# Timing

  - Delay only: one execution, Delay after registration.
  - Interval only: first execution after one Interval (not immediately).
  - Delay and Interval: first after Delay, then every Interval.

The interval is the nominal gap between execution starts. Records are
rescheduled at due+Interval regardless of how long the callback takes.

# Repeat

	schedule.Times(n)   // exactly n executions
	schedule.Never()    // no executions; Keep only cancels a previous record
	schedule.Forever()  // until Forget
	schedule.Repeat{}   // omitted, one execution

# Overlap

When a callback outlives the interval, OverlapAllow (the default) lets the
next execution start anyway. OverlapSkip drops due executions while one is
still running; the dropped slot still counts against Repeat. OverlapQueue
runs executions of one record one at a time in due order.

# Clock

Time comes from a k8s.io/utils/clock. Tests inject a fake clock and Step it;
callbacks run on their own goroutines.
*/
package schedule
