// Package parser reads course definitions from YAML catalog files.
package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/learnhub/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"
)

// courseFile mirrors the on-disk layout of a catalog file.
type courseFile struct {
	ID          string       `yaml:"id" validate:"omitempty,max=64"`
	Title       string       `yaml:"title" validate:"required"`
	Description string       `yaml:"description"`
	Instructor  string       `yaml:"instructor" validate:"required"`
	Duration    string       `yaml:"duration"`
	Level       string       `yaml:"level" validate:"required"`
	Thumbnail   string       `yaml:"thumbnail" validate:"omitempty,url"`
	Lessons     []lessonFile `yaml:"lessons" validate:"dive"`
}

type lessonFile struct {
	Title       string `yaml:"title" validate:"required"`
	Description string `yaml:"description"`
	Duration    string `yaml:"duration"`
	Order       int    `yaml:"order" validate:"gte=0"`
}

var validate = validator.New()

// IsCourseFile reports whether name looks like a catalog file.
func IsCourseFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ParseFile reads a catalog file from the given path. A course without an
// explicit id takes its id from the file name.
func ParseFile(path string) (domain.Draft, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Draft{}, err
	}
	defer file.Close()

	draft, err := Parse(file)
	if err != nil {
		return domain.Draft{}, err
	}
	if draft.Course.ID == "" {
		draft.Course.ID = Slug(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		for i := range draft.Lessons {
			draft.Lessons[i].CourseID = draft.Course.ID
		}
	}
	return draft, nil
}

// Parse reads a single course definition from r and validates it.
func Parse(r io.Reader) (domain.Draft, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f courseFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Draft{}, errors.New("empty course file")
		}
		return domain.Draft{}, fmt.Errorf("decode course: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return domain.Draft{}, fmt.Errorf("invalid course: %w", err)
	}

	id := Slug(f.ID)
	draft := domain.Draft{
		Course: domain.Course{
			ID:          id,
			Title:       strings.TrimSpace(f.Title),
			Description: strings.TrimSpace(f.Description),
			Instructor:  strings.TrimSpace(f.Instructor),
			Duration:    strings.TrimSpace(f.Duration),
			Level:       strings.TrimSpace(f.Level),
			Thumbnail:   strings.TrimSpace(f.Thumbnail),
		},
	}
	seen := make(map[int]bool, len(f.Lessons))
	for i, l := range f.Lessons {
		order := l.Order
		if order == 0 {
			order = i + 1
		}
		if seen[order] {
			return domain.Draft{}, fmt.Errorf("lesson %q: duplicate lesson order %d", l.Title, order)
		}
		seen[order] = true
		draft.Lessons = append(draft.Lessons, domain.Lesson{
			CourseID:    id,
			Title:       strings.TrimSpace(l.Title),
			Description: strings.TrimSpace(l.Description),
			Duration:    strings.TrimSpace(l.Duration),
			OrderNumber: order,
		})
	}
	return draft, nil
}

// Slug turns a file name into a course id: lower case, with runs of anything
// other than letters and digits collapsed into single dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
