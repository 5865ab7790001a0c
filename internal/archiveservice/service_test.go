package archiveservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/canvasarchive/internal/apperr"
	"github.com/starford/canvasarchive/internal/archive"
	"github.com/starford/canvasarchive/internal/models"
	"github.com/starford/canvasarchive/internal/parser"
	"github.com/starford/canvasarchive/internal/storage"
	"github.com/starford/canvasarchive/internal/testutil"
)

var defaultOpts = Options{Selector: models.Selector{Type: models.KindText, Color: "4"}}

func newService(t *testing.T, store storage.Provider) *Service {
	t.Helper()
	return NewService(store, testutil.TestDB(t), defaultOpts, testutil.Logger())
}

func TestArchive_EndToEnd(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "boards/plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)

	var events []*Result
	svc.OnArchive(func(r *Result) { events = append(events, r) })

	res, err := svc.Archive(context.Background(), "boards/plan.canvas")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !res.Changed || res.Cards != 2 || res.Archive != "boards/plan Archive.md" {
		t.Errorf("result = %+v", res)
	}
	if res.RunID == "" {
		t.Error("expected a recorded run id")
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}

	var names []string
	for p := res.Sections.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	if diff := cmp.Diff([]string{"Backlog", "Uncategorized"}, names); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	doc, err := store.Read("boards/plan Archive.md")
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	want := archive.Header +
		"\n## Backlog\n\n- [ ] first card<br>with two lines\n" +
		"\n## Uncategorized\n\n- [ ] stray card\n"
	if diff := cmp.Diff(want, string(doc)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}

	data, err := store.Read("boards/plan.canvas")
	if err != nil {
		t.Fatalf("read canvas: %v", err)
	}
	c, err := parser.ParseCanvas(data)
	if err != nil {
		t.Fatalf("ParseCanvas: %v", err)
	}
	var ids []string
	for _, n := range c.Nodes {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"g1", "k1"}, ids); diff != "" {
		t.Errorf("remaining nodes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(c.Extra["edges"]), `"e1"`) {
		t.Errorf("edges lost: %s", c.Extra["edges"])
	}
}

func TestArchive_MergesIntoExistingArchive(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	testutil.WriteFile(t, store, "plan Archive.md", archive.Header+"\n## Backlog\n\n- [ ] older\n")
	svc := newService(t, store)

	if _, err := svc.Archive(context.Background(), "plan.canvas"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	doc, _ := store.Read("plan Archive.md")
	want := archive.Header +
		"\n## Backlog\n- [ ] first card<br>with two lines\n\n- [ ] older\n" +
		"\n## Uncategorized\n\n- [ ] stray card\n"
	if diff := cmp.Diff(want, string(doc)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive_SecondPassIsNoop(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)
	ctx := context.Background()

	if _, err := svc.Archive(ctx, "plan.canvas"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	before, _ := store.Read("plan Archive.md")
	canvasBefore, _ := store.Read("plan.canvas")

	res, err := svc.Archive(ctx, "plan.canvas")
	if err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if res.Changed || res.Cards != 0 {
		t.Errorf("second pass result = %+v", res)
	}
	after, _ := store.Read("plan Archive.md")
	canvasAfter, _ := store.Read("plan.canvas")
	if string(before) != string(after) || string(canvasBefore) != string(canvasAfter) {
		t.Error("second pass must not modify files")
	}

	runs, _ := svc.Runs(ctx, "plan.canvas", 10)
	if len(runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runs))
	}
}

func TestArchive_NoCandidatesWritesNothing(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "quiet.canvas", `{"nodes":[{"id":"a","type":"text","color":"1","text":"x"}]}`)
	svc := newService(t, store)

	res, err := svc.Archive(context.Background(), "quiet.canvas")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.Changed {
		t.Error("expected no change")
	}
	if _, err := store.Read("quiet Archive.md"); err == nil {
		t.Error("archive should not be created")
	}
}

func TestArchive_Errors(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "broken.canvas", `{"nodes": [`)
	svc := newService(t, store)
	ctx := context.Background()

	cases := []struct {
		path string
		want error
	}{
		{"broken.canvas", apperr.ErrMalformedCanvas},
		{"missing.canvas", apperr.ErrNotFound},
		{"notes.md", apperr.ErrNotCanvas},
		{".canvas", apperr.ErrNoParent},
	}
	for _, tc := range cases {
		if _, err := svc.Archive(ctx, tc.path); !errors.Is(err, tc.want) {
			t.Errorf("Archive(%q) err = %v, want %v", tc.path, err, tc.want)
		}
	}
	if _, err := store.Read("broken Archive.md"); err == nil {
		t.Error("malformed canvas must not produce an archive")
	}
}

// failingCanvasStore fails writes to canvas files.
type failingCanvasStore struct {
	storage.Provider
}

func (f failingCanvasStore) Write(path string, content []byte) error {
	if strings.HasSuffix(path, CanvasExt) {
		return errors.New("disk full")
	}
	return f.Provider.Write(path, content)
}

func TestArchive_PartialWrite(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := NewService(failingCanvasStore{store}, nil, defaultOpts, testutil.Logger())

	_, err := svc.Archive(context.Background(), "plan.canvas")
	if !errors.Is(err, apperr.ErrPartialWrite) {
		t.Fatalf("err = %v, want ErrPartialWrite", err)
	}
	data, _ := store.Read("plan.canvas")
	if string(data) != testutil.BacklogCanvas {
		t.Error("canvas should be unchanged")
	}
}

func TestPreview_DoesNotWrite(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)

	res, err := svc.Preview(context.Background(), "plan.canvas")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !res.Changed || res.Cards != 2 || !strings.Contains(res.Document, "## Backlog") {
		t.Errorf("preview = %+v", res)
	}
	if _, err := store.Read("plan Archive.md"); err == nil {
		t.Error("preview must not write the archive")
	}
	data, _ := store.Read("plan.canvas")
	if string(data) != testutil.BacklogCanvas {
		t.Error("preview must not touch the canvas")
	}
}

func TestSweep(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "a.canvas", testutil.BacklogCanvas)
	testutil.WriteFile(t, store, "nested/b.canvas", testutil.BacklogCanvas)
	testutil.WriteFile(t, store, "quiet.canvas", `{"nodes":[]}`)
	testutil.WriteFile(t, store, "broken.canvas", `nope`)
	svc := newService(t, store)
	reported := -1
	svc.OnSweep(func(changed int) { reported = changed })

	n, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 || reported != 2 {
		t.Errorf("changed = %d, reported = %d, want 2", n, reported)
	}
	if _, err := store.Read("nested/b Archive.md"); err != nil {
		t.Errorf("nested archive missing: %v", err)
	}
}

func TestOutline(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)
	ctx := context.Background()

	if _, err := svc.Outline(ctx, "plan.canvas"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound before archiving", err)
	}
	if _, err := svc.Archive(ctx, "plan.canvas"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	o, err := svc.Outline(ctx, "plan.canvas")
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	want := []parser.Section{{Name: "Backlog", Open: 1}, {Name: "Uncategorized", Open: 1}}
	if diff := cmp.Diff(want, o.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_FindsArchivedCard(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)
	ctx := context.Background()

	if _, err := svc.Archive(ctx, "plan.canvas"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	hits, err := svc.Search(ctx, "stray", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Section != "Uncategorized" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestArchive_ConcurrentSameCanvas(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changed := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Archive(context.Background(), "plan.canvas")
			if err != nil {
				t.Errorf("Archive: %v", err)
				return
			}
			if res.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if changed != 1 {
		t.Errorf("changed passes = %d, want 1", changed)
	}
	doc, _ := store.Read("plan Archive.md")
	if c := strings.Count(string(doc), "stray card"); c != 1 {
		t.Errorf("stray card archived %d times", c)
	}
}

func TestArchivePath(t *testing.T) {
	cases := map[string]string{
		"plan.canvas":        "plan Archive.md",
		"boards/plan.canvas": "boards/plan Archive.md",
		"./a/../b/x.canvas":  "b/x Archive.md",
	}
	for in, want := range cases {
		got, err := ArchivePath(in, DefaultSuffix)
		if err != nil {
			t.Errorf("ArchivePath(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ArchivePath(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "  ", ".canvas", "/"} {
		if _, err := ArchivePath(bad, DefaultSuffix); !errors.Is(err, apperr.ErrNoParent) {
			t.Errorf("ArchivePath(%q) err = %v, want ErrNoParent", bad, err)
		}
	}
}

func TestPathLocks_SpellingsShareLock(t *testing.T) {
	var l pathLocks
	unlock := l.lock("boards/plan.canvas")

	for _, other := range []string{"./boards/plan.canvas", "boards//plan.canvas", "boards/x/../plan.canvas"} {
		acquired := make(chan func())
		go func() { acquired <- l.lock(other) }()

		select {
		case <-acquired:
			t.Fatalf("lock(%q) acquired while boards/plan.canvas is held", other)
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case unlock = <-acquired:
		case <-time.After(time.Second):
			t.Fatalf("lock(%q) not acquired after release", other)
		}
	}
	unlock()
}

func TestArchive_ConcurrentSpellingsOfOneCanvas(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFile(t, store, "boards/plan.canvas", testutil.BacklogCanvas)
	svc := newService(t, store)

	spellings := []string{"boards/plan.canvas", "./boards/plan.canvas", "boards/./plan.canvas", "boards//plan.canvas"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	changed := 0
	for _, p := range spellings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Archive(context.Background(), p)
			if err != nil {
				t.Errorf("Archive(%q): %v", p, err)
				return
			}
			if res.Canvas != "boards/plan.canvas" {
				t.Errorf("Archive(%q) canvas = %q", p, res.Canvas)
			}
			if res.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if changed != 1 {
		t.Errorf("changed passes = %d, want 1", changed)
	}
	doc, _ := store.Read("boards/plan Archive.md")
	if c := strings.Count(string(doc), "stray card"); c != 1 {
		t.Errorf("stray card archived %d times", c)
	}
}
