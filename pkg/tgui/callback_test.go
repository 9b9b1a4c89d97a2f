package tgui

import "testing"

func TestDataSplitRoundTrip(t *testing.T) {
	cases := []struct {
		scope, action, payload string
		want                   string
	}{
		{"remind", "sub", "42:4bxb", "remind:sub:42:4bxb"},
		{"remind", "noop", "", "remind:noop"},
	}
	for _, tc := range cases {
		data := Data(tc.scope, tc.action, tc.payload)
		if data != tc.want {
			t.Fatalf("Data = %q, want %q", data, tc.want)
		}
		scope, action, payload := Split(data)
		if scope != tc.scope || action != tc.action || payload != tc.payload {
			t.Fatalf("Split(%q) = %q %q %q", data, scope, action, payload)
		}
	}
}

func TestSplitKeepsPayloadSeparators(t *testing.T) {
	scope, action, payload := Split("remind:sub:-100123:42:4bxb")
	if scope != "remind" || action != "sub" || payload != "-100123:42:4bxb" {
		t.Fatalf("got %q %q %q", scope, action, payload)
	}
}
