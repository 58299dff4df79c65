package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewAllowList(t *testing.T) {
	allowed := NewAllowList([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("NewAllowList len = %d, want 2", len(allowed))
	}
	if !allowed.Allows("123") || !allowed.Allows(" 456 ") {
		t.Fatal("expected configured senders to be allowed")
	}
	if allowed.Allows("789") {
		t.Fatal("expected unknown sender to be denied")
	}

	if NewAllowList([]string{" ", ""}) != nil {
		t.Fatal("expected blank entries to yield an open allow list")
	}
}

func TestEmptyAllowListAllowsEveryone(t *testing.T) {
	var allowed AllowList
	if !allowed.Allows("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestPreviewText(t *testing.T) {
	if got := PreviewText(" hello "); got != "hello" {
		t.Fatalf("PreviewText short = %q, want %q", got, "hello")
	}

	got := PreviewText(strings.Repeat("a", previewLimit+20))
	if len(got) != previewLimit+3 {
		t.Fatalf("PreviewText long len = %d, want %d", len(got), previewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("PreviewText long = %q, want ellipsis suffix", got)
	}
}

func TestPreviewTextKeepsRunesWhole(t *testing.T) {
	// Each 🪐 is four bytes, so previewLimit falls inside the 60th one.
	got := PreviewText("a" + strings.Repeat("🪐", previewLimit))
	if !utf8.ValidString(got) {
		t.Fatalf("PreviewText split a rune: %q", got)
	}
	if !strings.HasSuffix(got, "🪐...") {
		t.Fatalf("PreviewText = %q, want whole runes before the ellipsis", got)
	}
	if len(got) > previewLimit+3 {
		t.Fatalf("PreviewText len = %d, want at most %d", len(got), previewLimit+3)
	}
}
