// Package syncer drives the mirror pipeline for one community: discover
// lessons, skip what the ledger already holds, extract the best video
// variant, lay the files out deterministically and commit each finished
// lesson atomically. Interruption between lessons is always safe; a
// lesson is either fully on disk and in the ledger, or will be retried
// on the next run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"coursemirror/internal/browser"
	"coursemirror/internal/shutdown"
	"coursemirror/internal/transport"
	"coursemirror/lib/hls"
	"coursemirror/lib/platforms"
	"coursemirror/lib/slugutil"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/syncer")

// ErrLoginRequired means the platform bounced the session to a login
// page: the community's crawl hard-stops instead of mis-reading empty
// pages as empty lessons.
var ErrLoginRequired = errors.New("authentication required, session is not logged in or has expired")

// errInterrupted aborts the in-flight lesson when shutdown is requested
// at a suspension point. It never leaves the package: the run simply
// stops with whatever was already committed.
var errInterrupted = errors.New("interrupted by shutdown request")

// Ledger is the completion store the orchestrator consults and commits
// to. *ledger.Store satisfies it.
type Ledger interface {
	Has(ctx context.Context, key string) (bool, error)
	MarkComplete(ctx context.Context, key, title string, manifest []string) error
}

// ManifestFetcher retrieves a multivariant playlist. hls.Client
// satisfies it.
type ManifestFetcher interface {
	FetchManifest(ctx context.Context, rawURL string) (string, *url.URL, error)
}

type Params struct {
	Session    browser.Session
	Ledger     Ledger
	Downloader transport.Downloader
	Manifests  ManifestFetcher
	Registry   platforms.Registry
	Coord      *shutdown.Coordinator

	OutputRoot string
	// MaxHeight caps the selected variant's resolution; zero means no cap.
	MaxHeight int
}

type Syncer struct {
	p Params
}

func New(p Params) *Syncer {
	return &Syncer{p: p}
}

// LessonFailure records one lesson whose attempt failed; it stays out of
// the ledger and is retried on the next run.
type LessonFailure struct {
	Key   string
	Title string
	Err   string
}

// Summary is the accounting every run ends with, even a forcibly
// shortened one.
type Summary struct {
	RunID       string
	Community   string
	Completed   int
	Skipped     int
	Failed      []LessonFailure
	Interrupted bool
}

// Run mirrors one community. Per-lesson failures are contained and
// reported in the summary; only conditions that make forward progress
// impossible for the whole community (login wall, ledger write failure)
// come back as an error. The summary is valid either way.
func (s *Syncer) Run(ctx context.Context, communityURL string) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	slug := s.p.Registry.ExtractCommunitySlug(communityURL)
	summary := Summary{
		RunID:     uuid.NewString(),
		Community: slug,
	}
	span.SetAttributes(
		attribute.String("community", slug),
		attribute.String("run_id", summary.RunID),
	)
	slog.InfoContext(ctx, "starting sync", "community", slug, "run_id", summary.RunID)

	if err := s.p.Session.Navigate(ctx, communityURL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open community")
		return summary, err
	}
	if !s.p.Coord.ShouldContinue() {
		summary.Interrupted = true
		return summary, nil
	}
	if s.p.Registry.IsLoginPage(s.p.Session.CurrentURL()) {
		span.SetStatus(codes.Error, ErrLoginRequired.Error())
		return summary, fmt.Errorf("community '%s': %w", slug, ErrLoginRequired)
	}

	root, err := s.p.Session.ExtractPageData(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract community page")
		return summary, err
	}

	communityDir := filepath.Join(s.p.OutputRoot, slug)
	for ci, course := range root.Courses {
		course, err := s.resolveCourse(ctx, course)
		if errors.Is(err, errInterrupted) {
			summary.Interrupted = true
			return summary, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve course")
			return summary, err
		}

		courseDir := filepath.Join(communityDir, slugutil.FolderName(ci, course.Title))
		for mi, module := range course.Modules {
			moduleDir := filepath.Join(courseDir, slugutil.FolderName(mi, module.Title))
			done, err := s.syncModule(ctx, &summary, moduleDir, module)
			if err != nil {
				return summary, err
			}
			if done {
				summary.Interrupted = true
				return summary, nil
			}
		}
	}

	slog.InfoContext(ctx, "sync finished",
		"community", slug,
		"completed", summary.Completed,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed),
	)
	return summary, nil
}

// syncModule walks one module's lessons in listing order. It returns
// done=true when shutdown was requested and enumeration must stop.
func (s *Syncer) syncModule(ctx context.Context, summary *Summary, moduleDir string, module browser.Module) (done bool, err error) {
	for li, lesson := range module.Lessons {
		if !s.p.Coord.ShouldContinue() {
			return true, nil
		}

		key := LessonKey(module, lesson)
		has, err := s.p.Ledger.Has(ctx, key)
		if err != nil {
			return false, fmt.Errorf("ledger lookup for '%s': %w", key, err)
		}
		if has {
			slog.DebugContext(ctx, "lesson already mirrored", "key", key)
			summary.Skipped++
			continue
		}

		manifest, err := s.mirrorLesson(ctx, moduleDir, li, lesson)
		if errors.Is(err, errInterrupted) {
			slog.InfoContext(ctx, "abandoning in-flight lesson", "key", key)
			return true, nil
		}
		if err != nil {
			slog.WarnContext(ctx, "lesson failed, will retry next run", "key", key, "err", err)
			summary.Failed = append(summary.Failed, LessonFailure{
				Key:   key,
				Title: lesson.Title,
				Err:   err.Error(),
			})
			continue
		}

		if err := s.p.Ledger.MarkComplete(ctx, key, lesson.Title, manifest); err != nil {
			// a ledger that cannot record progress makes resume
			// meaningless, abort the community
			return false, fmt.Errorf("ledger commit for '%s': %w", key, err)
		}
		summary.Completed++
		slog.InfoContext(ctx, "lesson mirrored", "key", key, "files", len(manifest))
	}
	return false, nil
}

// resolveCourse fills in a course's module tree, navigating to its page
// when the community listing only carried title and URL.
func (s *Syncer) resolveCourse(ctx context.Context, course browser.Course) (browser.Course, error) {
	if len(course.Modules) > 0 || course.URL == "" {
		return course, nil
	}

	if err := s.p.Session.Navigate(ctx, course.URL); err != nil {
		return course, err
	}
	if !s.p.Coord.ShouldContinue() {
		return course, errInterrupted
	}
	if s.p.Registry.IsLoginPage(s.p.Session.CurrentURL()) {
		return course, fmt.Errorf("course '%s': %w", course.Title, ErrLoginRequired)
	}

	page, err := s.p.Session.ExtractPageData(ctx)
	if err != nil {
		return course, err
	}
	for _, c := range page.Courses {
		if c.ID == course.ID || course.ID == "" {
			return c, nil
		}
	}
	return course, fmt.Errorf("course '%s' missing from its own page", course.Title)
}

// mirrorLesson materializes one lesson under moduleDir and returns the
// manifest of produced files. Any error leaves the ledger untouched.
func (s *Syncer) mirrorLesson(ctx context.Context, moduleDir string, index int, lesson browser.Lesson) ([]string, error) {
	ctx, span := tracer.Start(ctx, "mirrorLesson")
	defer span.End()
	span.SetAttributes(attribute.String("title", lesson.Title))

	var files []string

	if lesson.VideoManifestURL != "" {
		manifest, base, err := s.p.Manifests.FetchManifest(ctx, lesson.VideoManifestURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "manifest fetch failed")
			return nil, err
		}
		if !s.p.Coord.ShouldContinue() {
			return nil, errInterrupted
		}

		variants := hls.ParseVariants(manifest, base)
		if variant, ok := hls.PickVariant(variants, s.p.MaxHeight); ok {
			target := slugutil.VideoPath(moduleDir, index, lesson.Title)
			slog.DebugContext(ctx, "downloading video",
				"title", lesson.Title,
				"variant", variant.Label,
				"bandwidth", variant.Bandwidth,
			)
			if err := s.p.Downloader.Download(ctx, variant.URL, target); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "video download failed")
				return nil, err
			}
			files = append(files, target)
		} else {
			// zero valid variants is not an error: the lesson simply
			// has no detected video
			slog.DebugContext(ctx, "manifest has no variants, treating as metadata-only", "title", lesson.Title)
		}
		if !s.p.Coord.ShouldContinue() {
			return nil, errInterrupted
		}
	}

	for _, attachment := range lesson.Attachments {
		target := slugutil.DownloadFilePath(moduleDir, index, lesson.Title, attachment.Name)
		if err := s.p.Downloader.Download(ctx, attachment.URL, target); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "attachment download failed")
			return nil, err
		}
		files = append(files, target)
		if !s.p.Coord.ShouldContinue() {
			return nil, errInterrupted
		}
	}

	notes := slugutil.MarkdownPath(moduleDir, index, lesson.Title)
	if err := writeLessonNotes(notes, lesson); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write lesson notes")
		return nil, err
	}
	files = append(files, notes)

	return files, nil
}

// LessonKey is the stable ledger identity of a lesson: the platform's
// own lesson ID when the page data carries one, otherwise the module and
// lesson title slugs. Positional indices are deliberately excluded so
// reordering a course does not break resume.
func LessonKey(module browser.Module, lesson browser.Lesson) string {
	if lesson.ID != "" {
		return lesson.ID
	}
	return slugutil.Slugify(module.Title) + "/" + slugutil.Slugify(lesson.Title)
}

func writeLessonNotes(path string, lesson browser.Lesson) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", lesson.Title)
	if lesson.Body != "" {
		b.WriteString("\n")
		b.WriteString(lesson.Body)
		b.WriteString("\n")
	}
	if len(lesson.Attachments) > 0 {
		b.WriteString("\n## Attachments\n\n")
		for _, a := range lesson.Attachments {
			fmt.Fprintf(&b, "- %s\n", a.Name)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
