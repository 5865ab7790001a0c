// Package archiveservice sweeps selected cards off canvases into their
// Markdown archives.
package archiveservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/canvasarchive/internal/apperr"
	"github.com/starford/canvasarchive/internal/archive"
	"github.com/starford/canvasarchive/internal/checksum"
	"github.com/starford/canvasarchive/internal/grouping"
	"github.com/starford/canvasarchive/internal/index"
	"github.com/starford/canvasarchive/internal/models"
	"github.com/starford/canvasarchive/internal/parser"
	"github.com/starford/canvasarchive/internal/storage"
)

// CanvasExt is the file extension of canvas documents.
const CanvasExt = ".canvas"

// DefaultSuffix names the archive that sits next to a canvas.
const DefaultSuffix = " Archive.md"

// Options control which cards are swept and where they go.
type Options struct {
	Selector models.Selector
	Suffix   string
}

// Result describes one archive pass over a canvas.
type Result struct {
	Canvas   string                                   `json:"canvas"`
	Archive  string                                   `json:"archive"`
	Changed  bool                                     `json:"changed"`
	Cards    int                                      `json:"cards"`
	Sections *orderedmap.OrderedMap[string, []string] `json:"sections,omitempty"`
	RunID    string                                   `json:"run_id,omitempty"`
	Document string                                   `json:"document,omitempty"`
}

// Service coordinates storage, the resolver, the merger and the run index.
type Service struct {
	store  storage.Provider
	db     index.RunIndex
	opts   Options
	logger *slog.Logger

	locks     pathLocks
	onArchive func(*Result)
	onSweep   func(changed int)
}

// NewService creates a new archive service. db may be nil, in which case
// runs are not recorded.
func NewService(store storage.Provider, db index.RunIndex, opts Options, logger *slog.Logger) *Service {
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, opts: opts, logger: logger}
}

// OnArchive registers a callback invoked after every archive pass that
// changed files.
func (s *Service) OnArchive(fn func(*Result)) {
	s.onArchive = fn
}

// OnSweep registers a callback invoked when a sweep finishes.
func (s *Service) OnSweep(fn func(changed int)) {
	s.onSweep = fn
}

// archivePlan is the computed outcome of an archive pass before anything is written.
type archivePlan struct {
	canvas     *models.Canvas
	candidates []models.Node
	grouped    *orderedmap.OrderedMap[string, []models.Node]
	entries    *orderedmap.OrderedMap[string, []string]
	archive    string
	document   string
}

// Archive moves the selected cards of canvasPath into its archive. A canvas
// without selected cards is not an error: the result reports Changed=false
// and nothing is written.
//
// The archive is written before the canvas. If the canvas write fails the
// returned error wraps apperr.ErrPartialWrite.
func (s *Service) Archive(ctx context.Context, canvasPath string) (*Result, error) {
	canvasPath = canonicalPath(canvasPath)
	unlock := s.locks.lock(canvasPath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.plan(canvasPath)
	if err != nil {
		return nil, err
	}
	res := &Result{Canvas: canvasPath, Archive: p.archive}
	if len(p.candidates) == 0 {
		return res, nil
	}

	canvasOut, err := parser.EncodeCanvas(p.canvas.Without(models.IDs(p.candidates)))
	if err != nil {
		return nil, err
	}

	doc := []byte(p.document)
	if err := s.store.Write(p.archive, doc); err != nil {
		return nil, fmt.Errorf("archive: write %s: %w", p.archive, err)
	}
	if err := s.store.Write(canvasPath, canvasOut); err != nil {
		s.logger.Error("archive: canvas write failed after archive write",
			slog.String("canvas", canvasPath),
			slog.String("archive", p.archive),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrPartialWrite, canvasPath, err)
	}

	res.Changed = true
	res.Cards = len(p.candidates)
	res.Sections = p.entries

	if s.db != nil {
		runID, err := s.db.RecordRun(index.RunRow{
			Canvas:   canvasPath,
			Archive:  p.archive,
			Checksum: checksum.Sum(doc),
		}, cardRows(p.grouped))
		if err != nil {
			s.logger.Warn("archive: record run failed",
				slog.String("canvas", canvasPath),
				slog.String("error", err.Error()))
		} else {
			res.RunID = runID
		}
	}

	s.logger.Info("archive: cards archived",
		slog.String("canvas", canvasPath),
		slog.String("archive", p.archive),
		slog.Int("cards", res.Cards),
		slog.Int("sections", p.entries.Len()),
		slog.String("checksum", checksum.Short(doc)))

	if s.onArchive != nil {
		s.onArchive(res)
	}
	return res, nil
}

// Preview computes what Archive would do without writing anything. The
// merged archive text is returned in Result.Document.
func (s *Service) Preview(_ context.Context, canvasPath string) (*Result, error) {
	canvasPath = canonicalPath(canvasPath)
	p, err := s.plan(canvasPath)
	if err != nil {
		return nil, err
	}
	res := &Result{Canvas: canvasPath, Archive: p.archive, Cards: len(p.candidates)}
	if len(p.candidates) > 0 {
		res.Changed = true
		res.Sections = p.entries
		res.Document = p.document
	}
	return res, nil
}

// Sweep archives every canvas in the vault and returns how many changed.
// A failing canvas is logged and skipped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	metas, err := s.store.List("", CanvasExt)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		res, err := s.Archive(ctx, m.Path)
		if err != nil {
			s.logger.Warn("sweep: archive failed", slog.String("canvas", m.Path), slog.String("error", err.Error()))
			continue
		}
		if res.Changed {
			changed++
		}
	}
	s.logger.Info("sweep: done", slog.Int("canvases", len(metas)), slog.Int("changed", changed))
	if s.onSweep != nil {
		s.onSweep(changed)
	}
	return changed, nil
}

// Outline parses an archive. A canvas path is mapped to its archive first.
func (s *Service) Outline(_ context.Context, p string) (*parser.Outline, error) {
	if strings.HasSuffix(p, CanvasExt) {
		ap, err := ArchivePath(p, s.opts.Suffix)
		if err != nil {
			return nil, err
		}
		p = ap
	}
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, p)
		}
		return nil, err
	}
	return parser.ParseArchive(data)
}

// Search delegates to the run index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return []index.SearchResult{}, nil
	}
	return s.db.Search(query, limit)
}

// Runs lists recorded runs, optionally for one canvas.
func (s *Service) Runs(_ context.Context, canvas string, limit int) ([]index.RunRow, error) {
	if s.db == nil {
		return []index.RunRow{}, nil
	}
	return s.db.ListRuns(canvas, limit)
}

// plan reads the canvas and the current archive and computes the merge.
// Nothing is written.
func (s *Service) plan(canvasPath string) (*archivePlan, error) {
	if !strings.HasSuffix(canvasPath, CanvasExt) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotCanvas, canvasPath)
	}
	archivePath, err := ArchivePath(canvasPath, s.opts.Suffix)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Read(canvasPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, canvasPath)
		}
		return nil, err
	}
	c, err := parser.ParseCanvas(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrMalformedCanvas, canvasPath, err)
	}

	p := &archivePlan{canvas: c, archive: archivePath}
	p.candidates = c.Candidates(s.opts.Selector)
	if len(p.candidates) == 0 {
		return p, nil
	}

	p.grouped = grouping.Resolve(p.candidates, c.Groups())
	p.entries = archive.Entries(p.grouped)

	existing, err := s.store.Read(archivePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	p.document = archive.Merge(string(existing), p.entries)
	return p, nil
}

// ArchivePath returns the archive that belongs to canvasPath: a sibling file
// named after the canvas base name plus suffix.
func ArchivePath(canvasPath, suffix string) (string, error) {
	if strings.TrimSpace(canvasPath) == "" {
		return "", apperr.ErrNoParent
	}
	clean := path.Clean(filepath.ToSlash(canvasPath))
	base := strings.TrimSuffix(path.Base(clean), CanvasExt)
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("%w: %s", apperr.ErrNoParent, canvasPath)
	}
	return path.Join(path.Dir(clean), base+suffix), nil
}

func cardRows(grouped *orderedmap.OrderedMap[string, []models.Node]) []index.CardRow {
	var out []index.CardRow
	for pair := grouped.Oldest(); pair != nil; pair = pair.Next() {
		for _, n := range pair.Value {
			out = append(out, index.CardRow{NodeID: n.ID, Section: pair.Key, Text: n.Text})
		}
	}
	return out
}

// canonicalPath spells a vault path one way: slash separated and cleaned.
func canonicalPath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// pathLocks serialises archive passes per canvas. Keys are canonical paths,
// so every spelling of one file shares a mutex.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pathLocks) lock(p string) func() {
	p = canonicalPath(p)
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[p]
	if !ok {
		m = &sync.Mutex{}
		l.m[p] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
