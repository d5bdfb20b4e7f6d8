package gossip

import "time"

// backoffSchedule yields an exponentially growing sequence of delays with a
// hard ceiling. Callers pull the next delay per attempt and Reset on success;
// the sequence itself never terminates, so retry budgets stay with the caller.
type backoffSchedule struct {
	base time.Duration
	cap  time.Duration
	next time.Duration
}

func newBackoff(base, cap time.Duration) *backoffSchedule {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if cap < base {
		cap = base
	}
	return &backoffSchedule{base: base, cap: cap, next: base}
}

// Next returns the delay to wait before the upcoming attempt and advances the
// schedule.
func (b *backoffSchedule) Next() time.Duration {
	d := b.next
	doubled := b.next * 2
	if doubled > b.cap || doubled < b.next {
		doubled = b.cap
	}
	b.next = doubled
	return d
}

// Reset rewinds the schedule to its base delay.
func (b *backoffSchedule) Reset() {
	b.next = b.base
}
