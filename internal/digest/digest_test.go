package digest

import (
	"strings"
	"testing"

	"github.com/conorfennell/learnhub/internal/domain"
)

func draft(title string, lessons ...string) domain.Draft {
	d := domain.Draft{Course: domain.Course{ID: "c", Title: title, Level: "beginner"}}
	for i, l := range lessons {
		d.Lessons = append(d.Lessons, domain.Lesson{Title: l, OrderNumber: i + 1})
	}
	return d
}

func TestNormalize(t *testing.T) {
	d := draft("  Go Basics \r\n", "Hello")
	got := Normalize(d)
	if !strings.HasPrefix(got, "c\x1fGo Basics\x1f") {
		t.Errorf("Expected trimmed fields, but got %q", got)
	}
	if !strings.HasSuffix(got, "1\x1fHello\x1f\x1f") {
		t.Errorf("Expected lesson fields at the end, but got %q", got)
	}
}

func TestHash(t *testing.T) {
	t.Run("hash is deterministic", func(t *testing.T) {
		if Hash(draft("Go", "A")) != Hash(draft("Go", "A")) {
			t.Error("Expected hashes for identical drafts to be the same")
		}
	})

	t.Run("whitespace does not change the hash", func(t *testing.T) {
		if Hash(draft("Go", "A")) != Hash(draft("  Go\t", " A ")) {
			t.Error("Expected hashes to be the same after normalization")
		}
	})

	t.Run("case changes the hash", func(t *testing.T) {
		if Hash(draft("Go")) == Hash(draft("GO")) {
			t.Error("Expected a title case change to produce a different hash")
		}
	})

	t.Run("lesson changes change the hash", func(t *testing.T) {
		if Hash(draft("Go", "A", "B")) == Hash(draft("Go", "B", "A")) {
			t.Error("Expected reordered lessons to produce a different hash")
		}
		if Hash(draft("Go", "A")) == Hash(draft("Go", "A", "B")) {
			t.Error("Expected an added lesson to produce a different hash")
		}
	})

	t.Run("hex encoded sha256", func(t *testing.T) {
		if h := Hash(draft("Go")); len(h) != 64 {
			t.Errorf("Expected a 64 character hex digest, but got %d characters", len(h))
		}
	})
}
