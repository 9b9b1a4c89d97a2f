package remind

import (
	"testing"
	"time"
)

func TestNextFire(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		end      time.Time
		interval time.Duration
		now      time.Time
		next     time.Time
		missed   int
	}{
		{
			name:     "on time",
			end:      base,
			interval: time.Minute,
			now:      base,
			next:     base.Add(time.Minute),
			missed:   1,
		},
		{
			name:     "slightly late",
			end:      base,
			interval: time.Minute,
			now:      base.Add(5 * time.Second),
			next:     base.Add(time.Minute),
			missed:   1,
		},
		{
			name:     "offline across intervals",
			end:      base,
			interval: time.Minute,
			now:      base.Add(150 * time.Second),
			next:     base.Add(3 * time.Minute),
			missed:   3,
		},
		{
			name:     "exactly one interval late",
			end:      base,
			interval: time.Minute,
			now:      base.Add(time.Minute),
			next:     base.Add(2 * time.Minute),
			missed:   2,
		},
		{
			name:     "clock drift puts now before end",
			end:      base,
			interval: time.Minute,
			now:      base.Add(-10 * time.Second),
			next:     base.Add(time.Minute),
			missed:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, missed := NextFire(tc.end, tc.interval, tc.now)
			if !next.Equal(tc.next) {
				t.Fatalf("next = %v, want %v", next, tc.next)
			}
			if missed != tc.missed {
				t.Fatalf("missed = %d, want %d", missed, tc.missed)
			}
			if !next.After(tc.now) {
				t.Fatalf("next %v is not after now %v", next, tc.now)
			}
		})
	}
}

func TestNextFireZeroIntervalGuard(t *testing.T) {
	now := time.Now()
	next, missed := NextFire(now.Add(-time.Hour), 0, now)
	if missed != 1 {
		t.Fatalf("missed = %d, want 1", missed)
	}
	if next.Before(now) {
		t.Fatalf("next %v is before now %v", next, now)
	}
}
