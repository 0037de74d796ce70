package blob

import (
	"strings"
	"testing"
	"time"
)

func TestStampedKeyLayout(t *testing.T) {
	at := time.Date(2024, 1, 15, 14, 30, 52, 123000000, time.UTC)
	key := StampedKey("metro", at, "recording.mp3")

	want := "metro/2024/01/15/20240115_143052_123000_recording.mp3"
	if key != want {
		t.Errorf("StampedKey() = %q, want %q", key, want)
	}
}

func TestStampedKeyDistinctUnderConcurrency(t *testing.T) {
	// P4: parallel ingests with distinct timestamps produce distinct keys.
	base := time.Date(2024, 1, 15, 14, 30, 52, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * time.Microsecond)
		key := StampedKey("metro", at, "recording.mp3")
		if seen[key] {
			t.Fatalf("duplicate key generated: %q", key)
		}
		seen[key] = true
	}
}

func TestArchiveKeyCollision(t *testing.T) {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	existing := map[string]bool{
		"archive/2024/01/15/call.mp3":   true,
		"archive/2024/01/15/call_1.mp3": true,
	}
	exists := func(key string) bool { return existing[key] }

	got := ArchiveKey("archive", at, "call.mp3", true, exists)
	want := "archive/2024/01/15/call_2.mp3"
	if got != want {
		t.Errorf("ArchiveKey() = %q, want %q", got, want)
	}
}

func TestArchiveKeyNoDateOrg(t *testing.T) {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	got := ArchiveKey("archive", at, "call.mp3", false, nil)
	if strings.Contains(got, "2024") {
		t.Errorf("ArchiveKey() with organizeByDate=false should not contain year: %q", got)
	}
	if got != "archive/call.mp3" {
		t.Errorf("ArchiveKey() = %q, want archive/call.mp3", got)
	}
}
