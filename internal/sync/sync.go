// Package sync reconciles catalog sources into the course store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/learnhub/internal/digest"
	"github.com/conorfennell/learnhub/internal/gitsource"
	"github.com/conorfennell/learnhub/internal/parser"
	"github.com/conorfennell/learnhub/internal/storage"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Report summarizes one sync run.
type Report struct {
	Sources int
	Parsed  int
	Changed int
	Stale   int
	Errors  []error
}

// SourceType guesses whether path names a git repository or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return SourceGit
	}
	return SourceLocal
}

// AddSource registers a catalog source. Registering a path twice returns the
// existing source.
func AddSource(ctx context.Context, db *storage.DB, path string) (*storage.Source, error) {
	if path == "" {
		return nil, errors.New("source path cannot be empty")
	}
	sourceType := SourceType(path)
	if sourceType == SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve source path %s: %w", path, err)
		}
		path = abs
	}

	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		slog.Info("Source already registered", "id", existing.ID, "path", path)
		return existing, nil
	}

	id, err := db.InsertSource(ctx, path, sourceType)
	if err != nil {
		return nil, err
	}
	slog.Info("Source added", "id", id, "type", sourceType, "path", path)
	return &storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// RunSync iterates over all sources and reconciles them. Per-source and
// per-file failures are collected in the report; only failing to list the
// sources is returned as an error.
func RunSync(ctx context.Context, db *storage.DB, reposDir string) (Report, error) {
	slog.Info("Starting sync process for all sources...")
	var report Report

	sources, err := db.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return report, nil
	}

	foundCourseIDs := make(map[string]bool)
	var reconciled []storage.Source

	for _, source := range sources {
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		report.Sources++

		sourceToReconcile := source

		if source.Type == SourceGit {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm); err != nil {
				slog.Error("Failed to create repos directory", "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}

			if err := gitsource.Sync(ctx, source.Path, localRepoPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}

			sourceToReconcile.Path = localRepoPath
		}

		if reconcileLocalSource(ctx, db, &sourceToReconcile, foundCourseIDs, &report) {
			reconciled = append(reconciled, source)
		}
	}

	// Ownership may move between sources within one run, so staleness is judged
	// only once every source has been walked.
	for _, source := range reconciled {
		dbCourseIDs, err := db.ListCourseIDsBySource(ctx, source.ID)
		if err != nil {
			slog.Error("Error getting courses for source", "source_id", source.ID, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		// Progress rows reference courses, so vanished courses are reported, not deleted.
		for _, id := range dbCourseIDs {
			if !foundCourseIDs[id] {
				slog.Warn("Course no longer present in source", "course_id", id, "source_id", source.ID)
				report.Stale++
			}
		}
	}

	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"parsed", report.Parsed,
		"changed", report.Changed,
		"stale", report.Stale,
		"errors", len(report.Errors),
	)
	return report, nil
}

// reconcileLocalSource records every course id it parses in foundCourseIDs,
// which is shared across sources so an id claimed twice is rejected. It reports
// whether the walk completed.
func reconcileLocalSource(ctx context.Context, db *storage.DB, source *storage.Source, foundCourseIDs map[string]bool, report *Report) bool {
	var parseErrors []error
	var parsed, changed int

	walkErr := filepath.WalkDir(source.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.IsCourseFile(d.Name()) {
			return nil
		}

		draft, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		if draft.Course.ID == "" {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: cannot derive a course id", path))
			return nil
		}
		if foundCourseIDs[draft.Course.ID] {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: duplicate course id %s", path, draft.Course.ID))
			return nil
		}
		foundCourseIDs[draft.Course.ID] = true
		parsed++

		wrote, upsertErr := db.UpsertCourse(ctx, draft, source.ID, digest.Hash(draft))
		if upsertErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("db upsert for %s: %w", draft.Course.ID, upsertErr))
			return nil
		}
		if wrote {
			slog.Info("Course stored", "course_id", draft.Course.ID, "lessons", len(draft.Lessons))
			changed++
		}
		return nil
	})

	if walkErr != nil {
		slog.Error("Error walking directory", "path", source.Path, "error", walkErr)
		report.Errors = append(report.Errors, walkErr)
		return false
	}

	report.Parsed += parsed
	report.Changed += changed
	report.Errors = append(report.Errors, parseErrors...)
	for _, e := range parseErrors {
		slog.Warn("Skipped catalog file", "error", e)
	}

	if err := db.UpdateSourceLastScanned(ctx, source.ID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"parsed_courses", parsed,
		"changed", changed,
		"errors", len(parseErrors),
	)
	return true
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
