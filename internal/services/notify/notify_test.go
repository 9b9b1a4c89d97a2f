package notify

import (
	"strings"
	"testing"
)

func TestRenderReminder(t *testing.T) {
	got := renderReminder(42, nil, "")
	if !strings.Contains(got, "tg://user?id=42") {
		t.Fatalf("missing owner mention: %q", got)
	}
	if !strings.Contains(got, "<i>no message provided</i>") {
		t.Fatalf("missing empty-message placeholder: %q", got)
	}

	got = renderReminder(42, []int64{7, 9}, "feed the <cat>")
	if !strings.Contains(got, "<b>feed the &lt;cat&gt;</b>") {
		t.Fatalf("message not escaped or not bold: %q", got)
	}
	if !strings.Contains(got, "Also for: ") {
		t.Fatalf("missing subscriber line: %q", got)
	}
	for _, id := range []string{"id=7", "id=9"} {
		if !strings.Contains(got, id) {
			t.Fatalf("missing subscriber mention %s: %q", id, got)
		}
	}

	// Subscribers only show up when present.
	if strings.Contains(renderReminder(42, nil, "x"), "Also for") {
		t.Fatal("subscriber line rendered for empty set")
	}
}
