package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"coursemirror/internal/browser"
	"coursemirror/internal/ledger"
	"coursemirror/internal/shutdown"
	"coursemirror/lib/platforms"
	"coursemirror/lib/testutil"

	"github.com/stretchr/testify/require"
)

const testManifest = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p/index.m3u8
`

type fakeSession struct {
	pages      map[string]*browser.PageData
	currentURL string
	loginWall  bool
	navigated  []string
}

func (f *fakeSession) CurrentURL() string { return f.currentURL }

func (f *fakeSession) Navigate(_ context.Context, rawURL string) error {
	f.navigated = append(f.navigated, rawURL)
	if f.loginWall {
		f.currentURL = "https://www.skool.com/login?next=%2Fai-builders"
		return nil
	}
	f.currentURL = rawURL
	return nil
}

func (f *fakeSession) ExtractPageData(context.Context) (*browser.PageData, error) {
	page, ok := f.pages[f.currentURL]
	if !ok {
		return nil, browser.ErrNoPageData
	}
	return page, nil
}

func (f *fakeSession) Close() error { return nil }

type fakeDownloader struct {
	mu       sync.Mutex
	calls    []string
	failURLs map[string]bool
	onCall   func(url string)
}

func (f *fakeDownloader) Download(_ context.Context, rawURL, dest string) error {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(rawURL)
	}
	if f.failURLs[rawURL] {
		return errors.New("connection reset")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("bytes"), 0644)
}

type fakeManifests struct {
	manifest string
}

func (f fakeManifests) FetchManifest(_ context.Context, rawURL string) (string, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, err
	}
	return f.manifest, base, nil
}

const communityURL = "https://www.skool.com/ai-builders"

func testCourseTree() *browser.PageData {
	return &browser.PageData{
		Community: "AI Builders",
		Courses: []browser.Course{{
			ID:    "crs_1",
			Title: "Foundations",
			Modules: []browser.Module{
				{
					ID:    "mod_1",
					Title: "Getting Started",
					Lessons: []browser.Lesson{
						{
							ID:               "les_1",
							Title:            "Welcome",
							VideoManifestURL: "https://cdn.test/les_1/index.m3u8",
							Body:             "Hello!",
							Attachments: []browser.Attachment{
								{Name: "Workbook.pdf", URL: "https://cdn.test/les_1/workbook.pdf"},
							},
						},
						{
							ID:    "les_2",
							Title: "Reading",
							Body:  "Text only lesson.",
						},
					},
				},
				{
					ID:    "mod_2",
					Title: "Deep Dive",
					Lessons: []browser.Lesson{
						{
							ID:               "les_3",
							Title:            "Advanced",
							VideoManifestURL: "https://cdn.test/les_3/index.m3u8",
						},
					},
				},
			},
		}},
	}
}

type fixture struct {
	syncer     *Syncer
	session    *fakeSession
	downloader *fakeDownloader
	store      *ledger.Store
	coord      *shutdown.Coordinator
	outputRoot string
}

func setup(t *testing.T, maxHeight int) *fixture {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "syncer",
		DbSchema: ledger.Schema,
	})
	t.Cleanup(cleanup)

	store, err := ledger.New(res.DB)
	require.NoError(t, err)

	session := &fakeSession{
		pages: map[string]*browser.PageData{communityURL: testCourseTree()},
	}
	downloader := &fakeDownloader{failURLs: map[string]bool{}}
	coord := shutdown.NewCoordinator()
	outputRoot := t.TempDir()

	return &fixture{
		syncer: New(Params{
			Session:    session,
			Ledger:     store,
			Downloader: downloader,
			Manifests:  fakeManifests{manifest: testManifest},
			Registry:   platforms.DefaultRegistry(),
			Coord:      coord,
			OutputRoot: outputRoot,
			MaxHeight:  maxHeight,
		}),
		session:    session,
		downloader: downloader,
		store:      store,
		coord:      coord,
		outputRoot: outputRoot,
	}
}

func TestRunMirrorsCommunity(t *testing.T) {
	f := setup(t, 0)

	summary, err := f.syncer.Run(context.Background(), communityURL)
	require.NoError(t, err)
	require.Equal(t, "ai-builders", summary.Community)
	require.Equal(t, 3, summary.Completed)
	require.Equal(t, 0, summary.Skipped)
	require.Empty(t, summary.Failed)
	require.False(t, summary.Interrupted)

	// highest-bandwidth variant picked with no cap configured
	require.Contains(t, f.downloader.calls, "https://cdn.test/les_1/1080p/index.m3u8")
	require.Contains(t, f.downloader.calls, "https://cdn.test/les_1/workbook.pdf")
	require.Contains(t, f.downloader.calls, "https://cdn.test/les_3/1080p/index.m3u8")

	// deterministic layout
	moduleDir := filepath.Join(f.outputRoot, "ai-builders", "01-foundations", "01-getting-started")
	_, err = os.Stat(filepath.Join(moduleDir, "01-welcome.mp4"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(moduleDir, "01-welcome-Workbook.pdf"))
	require.NoError(t, err)

	notes, err := os.ReadFile(filepath.Join(moduleDir, "02-reading.md"))
	require.NoError(t, err)
	require.Contains(t, string(notes), "Text only lesson.")

	// stable platform IDs used as ledger keys
	for _, key := range []string{"les_1", "les_2", "les_3"} {
		has, err := f.store.Has(context.Background(), key)
		require.NoError(t, err)
		require.True(t, has, "key %s", key)
	}
}

func TestRunRespectsResolutionCap(t *testing.T) {
	f := setup(t, 720)

	_, err := f.syncer.Run(context.Background(), communityURL)
	require.NoError(t, err)

	require.Contains(t, f.downloader.calls, "https://cdn.test/les_1/720p/index.m3u8")
	require.NotContains(t, f.downloader.calls, "https://cdn.test/les_1/1080p/index.m3u8")
}

func TestRunIsIdempotent(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	first, err := f.syncer.Run(ctx, communityURL)
	require.NoError(t, err)
	require.Equal(t, 3, first.Completed)

	downloadsAfterFirst := len(f.downloader.calls)

	second, err := f.syncer.Run(ctx, communityURL)
	require.NoError(t, err)
	require.Equal(t, 0, second.Completed)
	require.Equal(t, 3, second.Skipped)
	require.Len(t, f.downloader.calls, downloadsAfterFirst, "resume must not redownload")
}

func TestLoginWallHardStopsCommunity(t *testing.T) {
	f := setup(t, 0)
	f.session.loginWall = true

	summary, err := f.syncer.Run(context.Background(), communityURL)
	require.ErrorIs(t, err, ErrLoginRequired)
	require.Equal(t, 0, summary.Completed)
	require.Empty(t, f.downloader.calls)
}

func TestTransportFailureIsContained(t *testing.T) {
	f := setup(t, 0)
	f.downloader.failURLs["https://cdn.test/les_1/1080p/index.m3u8"] = true
	ctx := context.Background()

	summary, err := f.syncer.Run(ctx, communityURL)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Completed)
	require.Len(t, summary.Failed, 1)
	require.Equal(t, "les_1", summary.Failed[0].Key)

	// the failed lesson stays out of the ledger and is retried next run
	has, err := f.store.Has(ctx, "les_1")
	require.NoError(t, err)
	require.False(t, has)

	f.downloader.failURLs = map[string]bool{}
	retry, err := f.syncer.Run(ctx, communityURL)
	require.NoError(t, err)
	require.Equal(t, 1, retry.Completed)
	require.Equal(t, 2, retry.Skipped)
}

func TestShutdownAbandonsInFlightLessonUnmarked(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	// first interrupt lands while lesson 3's video is transferring
	f.downloader.onCall = func(url string) {
		if url == "https://cdn.test/les_3/1080p/index.m3u8" {
			f.coord.RequestShutdown()
		}
	}

	summary, err := f.syncer.Run(ctx, communityURL)
	require.NoError(t, err)
	require.True(t, summary.Interrupted)
	require.Equal(t, 2, summary.Completed)

	// committed lessons survive, the abandoned one does not
	for key, want := range map[string]bool{"les_1": true, "les_2": true, "les_3": false} {
		has, err := f.store.Has(ctx, key)
		require.NoError(t, err)
		require.Equal(t, want, has, "key %s", key)
	}
}

func TestShutdownBeforeRunDoesNothing(t *testing.T) {
	f := setup(t, 0)
	f.coord.RequestShutdown()

	summary, err := f.syncer.Run(context.Background(), communityURL)
	require.NoError(t, err)
	require.True(t, summary.Interrupted)
	require.Equal(t, 0, summary.Completed)
	require.Empty(t, f.downloader.calls)
}

func TestResolveCourseNavigatesToCoursePage(t *testing.T) {
	f := setup(t, 0)
	courseURL := "https://www.skool.com/ai-builders/classroom/crs_1"

	full := testCourseTree().Courses[0]
	f.session.pages = map[string]*browser.PageData{
		communityURL: {
			Community: "AI Builders",
			Courses: []browser.Course{{
				ID:    "crs_1",
				Title: "Foundations",
				URL:   courseURL,
			}},
		},
		courseURL: {
			Community: "AI Builders",
			Courses:   []browser.Course{full},
		},
	}

	summary, err := f.syncer.Run(context.Background(), communityURL)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Completed)
	require.Contains(t, f.session.navigated, courseURL)
}

func TestLessonKeyFallsBackToSlugs(t *testing.T) {
	module := browser.Module{Title: "Getting Started"}

	withID := browser.Lesson{ID: "les_9", Title: "Welcome"}
	require.Equal(t, "les_9", LessonKey(module, withID))

	withoutID := browser.Lesson{Title: "Straße Über Alles"}
	require.Equal(t, "getting-started/strasse-ueber-alles", LessonKey(module, withoutID))
}

func TestLedgerWriteFailureAbortsCommunity(t *testing.T) {
	f := setup(t, 0)
	failing := &failingLedger{inner: f.store}
	f.syncer = New(Params{
		Session:    f.session,
		Ledger:     failing,
		Downloader: f.downloader,
		Manifests:  fakeManifests{manifest: testManifest},
		Registry:   platforms.DefaultRegistry(),
		Coord:      f.coord,
		OutputRoot: f.outputRoot,
	})

	_, err := f.syncer.Run(context.Background(), communityURL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ledger commit")
}

type failingLedger struct {
	inner *ledger.Store
}

func (l *failingLedger) Has(ctx context.Context, key string) (bool, error) {
	return l.inner.Has(ctx, key)
}

func (l *failingLedger) MarkComplete(context.Context, string, string, []string) error {
	return fmt.Errorf("disk full")
}
