package remind

import "time"

// NextFire computes the end time for the next cycle of a recurring timer.
//
// missed counts the cycle that is firing right now plus every full interval
// that elapsed while the timer went unobserved (for example during process
// downtime), so a reminder that was offline across several intervals jumps
// straight past them instead of firing once per missed interval.
//
// The returned end time is always strictly after now.
func NextFire(endTime time.Time, interval time.Duration, now time.Time) (next time.Time, missed int) {
	if interval <= 0 {
		// Callers validate against MinRecurrence; guard against a zero
		// interval looping forever.
		return now, 1
	}
	elapsed := now.Sub(endTime)
	if elapsed < 0 {
		elapsed = 0
	}
	missed = 1 + int(elapsed/interval)
	next = endTime.Add(interval * time.Duration(missed))
	return next, missed
}
