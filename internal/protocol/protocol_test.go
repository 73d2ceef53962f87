package protocol

import (
	"fmt"
	"strings"
	"testing"

	"soundpairs/internal/sets"
)

func TestSanitizeMessagesTrimsAndDrops(t *testing.T) {
	t.Parallel()

	in := []string{
		"  keep me  ",
		"",
		"   ",
		strings.Repeat("x", MaxMessageLen),
		strings.Repeat("x", MaxMessageLen+1),
		"also kept",
	}
	got := SanitizeMessages(in)
	want := []string{"keep me", strings.Repeat("x", MaxMessageLen), "also kept"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeMessagesCapsAtMaxMessages(t *testing.T) {
	t.Parallel()

	in := make([]string, MaxMessages+25)
	for i := range in {
		in[i] = fmt.Sprintf("message %d", i)
	}
	got := SanitizeMessages(in)
	if len(got) != MaxMessages {
		t.Fatalf("expected cap at %d messages, got %d", MaxMessages, len(got))
	}
	if got[MaxMessages-1] != fmt.Sprintf("message %d", MaxMessages-1) {
		t.Fatalf("cap must keep the first %d entries, last kept is %q", MaxMessages, got[MaxMessages-1])
	}

	// Dropped entries don't count against the cap.
	in[0] = "   "
	got = SanitizeMessages(in)
	if len(got) != MaxMessages {
		t.Fatalf("expected cap at %d messages, got %d", MaxMessages, len(got))
	}
	if got[0] != "message 1" {
		t.Fatalf("expected blank entry dropped, first kept is %q", got[0])
	}
}

func TestDefaultRecordsDoc(t *testing.T) {
	t.Parallel()

	doc := DefaultRecordsDoc()
	for _, key := range []string{"0", "1", "2"} {
		b, ok := doc.Best[key]
		if !ok {
			t.Fatalf("missing set %s", key)
		}
		if b.Time != nil || b.Attempts != nil {
			t.Fatalf("expected unset record for set %s, got %+v", key, b)
		}
	}
	if doc.Names != sets.DefaultNames {
		t.Fatalf("expected default names, got %v", doc.Names)
	}
	if doc.Keys[0] == nil || doc.Keys[1] == nil || len(doc.Keys[0]) != 0 || len(doc.Keys[1]) != 0 {
		t.Fatalf("expected empty non-nil key lists, got %v", doc.Keys)
	}
}

func TestSlotKeyPrefix(t *testing.T) {
	t.Parallel()

	if got := SlotKeyPrefix(1); got != "set1-" {
		t.Fatalf("unexpected prefix %q", got)
	}
	if got := SlotKeyPrefix(2); got != "set2-" {
		t.Fatalf("unexpected prefix %q", got)
	}
}
