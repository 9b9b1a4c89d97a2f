package bot

import (
	"strings"
	"testing"
	"time"

	"remindbot/internal/remind"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		cmd  string
		args string
	}{
		{"/remind 10m stop watching tv", "remind", "10m stop watching tv"},
		{"/remind_view", "remind_view", ""},
		{"/remind@SomeBot 5m", "remind", "5m"},
		{"/REMIND_DELETE 4bxb", "remind_delete", "4bxb"},
	}
	for _, tc := range cases {
		cmd, args := splitCommand(tc.in)
		if cmd != tc.cmd || args != tc.args {
			t.Fatalf("splitCommand(%q) = %q, %q", tc.in, cmd, args)
		}
	}
}

func TestUntilClock(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)

	target, err := untilClock("10:00", now)
	if err != nil {
		t.Fatalf("untilClock: %v", err)
	}
	if d := target.Sub(now); d != 30*time.Minute {
		t.Fatalf("later today = %v, want 30m", d)
	}

	// A time already past rolls over to tomorrow.
	target, err = untilClock("09:00", now)
	if err != nil {
		t.Fatalf("untilClock: %v", err)
	}
	if target.Day() != now.Day()+1 || target.Hour() != 9 {
		t.Fatalf("tomorrow = %v", target)
	}

	if _, err := untilClock("25:99", now); err == nil {
		t.Fatal("expected error for out-of-range time")
	}
	if _, err := untilClock("soon", now); err == nil {
		t.Fatal("expected error for junk input")
	}
}

func TestFormatDur(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Second, "1m30s"},
		{time.Hour, "1h"},
		{time.Hour + 30*time.Minute, "1h30m"},
		{10 * time.Minute, "10m"},
		{-3 * time.Second, "0s"},
		{0, "0s"},
		// seconds that are multiples of ten keep their trailing digit
		{10 * time.Second, "10s"},
		{30 * time.Second, "30s"},
		{2*time.Minute + 30*time.Second, "2m30s"},
		{time.Hour + 30*time.Second, "1h30s"},
		{25 * time.Hour, "25h"},
	}
	for _, tc := range cases {
		if got := formatDur(tc.in); got != tc.want {
			t.Fatalf("formatDur(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	interval := 5 * time.Minute

	running := remind.Record{
		State:       remind.Running(now.Add(10 * time.Minute)),
		Recurrence:  &interval,
		Message:     "standup <again>",
		Subscribers: []int64{7, 9},
	}
	got := describe(running, now)
	for _, want := range []string{"triggers in", "10m", "recurs every", "5m", "&lt;again&gt;", "(+2 subscribers)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("describe running = %q, missing %q", got, want)
		}
	}

	paused := remind.Record{State: remind.Paused(90 * time.Second)}
	got = describe(paused, now)
	if !strings.Contains(got, "paused") || !strings.Contains(got, "1m30s") {
		t.Fatalf("describe paused = %q", got)
	}
}

func TestSubCallbackData(t *testing.T) {
	if got := subCallbackData(42, "4bxb"); got != "remind:sub:42:4bxb" {
		t.Fatalf("subCallbackData = %q", got)
	}
}
