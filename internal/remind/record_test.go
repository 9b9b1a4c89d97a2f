package remind

import (
	"testing"
	"time"
)

func TestToggleLabel(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{0, "Remind me"},
		{1, "Remind me (1 user)"},
		{2, "Remind me (2 users)"},
		{17, "Remind me (17 users)"},
	}
	for _, tc := range cases {
		if got := ToggleLabel(tc.count); got != tc.want {
			t.Fatalf("ToggleLabel(%d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}

func TestToggleSubscriberKeepsSortedSet(t *testing.T) {
	var rec Record

	for _, user := range []int64{30, 10, 20} {
		if !rec.toggleSubscriber(user) {
			t.Fatalf("first toggle of %d should subscribe", user)
		}
	}
	want := []int64{10, 20, 30}
	if len(rec.Subscribers) != len(want) {
		t.Fatalf("subscribers = %v, want %v", rec.Subscribers, want)
	}
	for i, u := range want {
		if rec.Subscribers[i] != u {
			t.Fatalf("subscribers = %v, want %v", rec.Subscribers, want)
		}
	}

	if rec.toggleSubscriber(20) {
		t.Fatal("second toggle of 20 should unsubscribe")
	}
	if rec.HasSubscriber(20) {
		t.Fatal("20 still present after unsubscribe")
	}
	if !rec.HasSubscriber(10) || !rec.HasSubscriber(30) {
		t.Fatalf("unrelated subscribers lost: %v", rec.Subscribers)
	}
}

func TestShareEligible(t *testing.T) {
	cases := []struct {
		name      string
		group     bool
		duration  time.Duration
		recurring bool
		want      bool
	}{
		{"private chat never shareable", false, time.Hour, true, false},
		{"short one-shot", true, 90 * time.Second, false, false},
		{"exactly at threshold", true, 2 * time.Minute, false, true},
		{"long one-shot", true, time.Hour, false, true},
		{"short but recurring", true, 30 * time.Second, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShareEligible(tc.group, tc.duration, tc.recurring); got != tc.want {
				t.Fatalf("ShareEligible(%v, %v, %v) = %v, want %v",
					tc.group, tc.duration, tc.recurring, got, tc.want)
			}
		})
	}
}

func TestPausedClampsNegativeRemaining(t *testing.T) {
	st := Paused(-5 * time.Second)
	if st.Remaining != 0 {
		t.Fatalf("Remaining = %v, want 0", st.Remaining)
	}
	if st.IsRunning() {
		t.Fatal("paused state reports running")
	}
}
