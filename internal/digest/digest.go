package digest

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/learnhub/internal/domain"
)

// Normalize renders a drafted course as one canonical string. Each field is
// trimmed and has its line endings normalized; case is kept because it is
// visible to readers.
func Normalize(draft domain.Draft) string {
	normalizePart := func(part string) string {
		p := strings.TrimSpace(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	c := draft.Course
	parts := []string{
		normalizePart(c.ID),
		normalizePart(c.Title),
		normalizePart(c.Description),
		normalizePart(c.Instructor),
		normalizePart(c.Duration),
		normalizePart(c.Level),
		normalizePart(c.Thumbnail),
	}
	for _, l := range draft.Lessons {
		parts = append(parts,
			strconv.Itoa(l.OrderNumber),
			normalizePart(l.Title),
			normalizePart(l.Description),
			normalizePart(l.Duration),
		)
	}

	// Fields are separated by a unit separator so that a value containing a
	// newline cannot collide with two adjacent fields.
	return strings.Join(parts, "\x1f")
}

// Hash normalizes a drafted course and returns its SHA-256 hash as a hex string.
func Hash(draft domain.Draft) string {
	normalized := Normalize(draft)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
