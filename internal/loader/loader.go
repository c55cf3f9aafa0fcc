// Package loader owns the units of one launch and serves their rewritten
// bytes on demand.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"weaver/internal/crawler"
	"weaver/internal/plugin"
	"weaver/internal/storage"
	"weaver/internal/transform"
)

// ErrUnknownUnit is returned when a unit has no source and nothing
// synthesizes it.
var ErrUnknownUnit = errors.New("unknown unit")

// Result is the outcome of rewriting one unit in a batch.
type Result struct {
	Unit string
	Data []byte
	// Changed is false when the source bytes were passed through untouched.
	Changed bool
	Err     error
}

// Launcher is the rewriting loader for one run.
type Launcher struct {
	id        string
	root      string
	startedAt time.Time
	pipeline  *transform.Pipeline
	store     storage.AuditStore
	workers   int
	logger    *slog.Logger

	mu      sync.RWMutex
	sources map[string]crawler.Source

	announce sync.Once
}

type Option func(*Launcher)

func WithLogger(l *slog.Logger) Option {
	return func(ln *Launcher) {
		if l != nil {
			ln.logger = l
		}
	}
}

// WithStore persists the audit trail of the launch on PersistAudit.
func WithStore(s storage.AuditStore) Option {
	return func(ln *Launcher) { ln.store = s }
}

// WithWorkers bounds RewriteAll concurrency. Zero or less uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(ln *Launcher) { ln.workers = n }
}

// WithRoot records where the launch's sources came from.
func WithRoot(root string) Option {
	return func(ln *Launcher) { ln.root = root }
}

// New creates a launcher with a fresh launch id.
func New(p *transform.Pipeline, opts ...Option) *Launcher {
	l := &Launcher{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		pipeline:  p,
		logger:    slog.Default(),
		sources:   make(map[string]crawler.Source),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.workers <= 0 {
		l.workers = runtime.GOMAXPROCS(0)
	}
	l.logger = l.logger.With("component", "loader", "launch", l.id)
	return l
}

func (l *Launcher) ID() string { return l.id }

// AddSource makes src loadable. A later source for the same unit wins.
func (l *Launcher) AddSource(src crawler.Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.sources[src.Unit]; ok {
		l.logger.Warn("unit defined twice", "unit", src.Unit, "first", prev.Path, "second", src.Path)
	}
	l.sources[src.Unit] = src
}

// Discover scans root for encoded units, registers them as sources and
// hands the list to resource-consuming plugins.
func (l *Launcher) Discover(c *crawler.Crawler, root string) error {
	var resources []plugin.Resource
	err := c.ScanUnits(root, func(src crawler.Source) {
		l.AddSource(src)
		resources = append(resources, plugin.Resource{Name: src.Unit, Path: src.Path})
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	if l.root == "" {
		l.root = root
	}
	l.pipeline.Plugins().BroadcastResources(resources)
	l.logger.Info("discovered units", "root", root, "count", len(resources))
	return nil
}

// Units lists every unit with a source, sorted.
func (l *Launcher) Units() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.sources))
	for name := range l.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start tells launch-aware plugins that units can be fetched. Only the
// first call has an effect.
func (l *Launcher) Start() {
	l.announce.Do(func() {
		l.pipeline.Plugins().AnnounceLaunch(l.Fetch)
	})
}

// Load returns the bytes of unit as they should be loaded.
func (l *Launcher) Load(ctx context.Context, unit string) ([]byte, error) {
	return l.load(ctx, unit, transform.ReasonClassloading)
}

// Fetch serves plugins that need the transformed bytes of another unit, for
// example to compute frames against it.
func (l *Launcher) Fetch(unit, reason string) ([]byte, error) {
	return l.load(context.Background(), unit, reason)
}

func (l *Launcher) load(ctx context.Context, unit, reason string) ([]byte, error) {
	l.mu.RLock()
	src, ok := l.sources[unit]
	l.mu.RUnlock()

	var input []byte
	if ok {
		input = src.Data
	}
	out, err := l.pipeline.Rewrite(ctx, input, unit, reason)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", unit, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load %s: %w", unit, ErrUnknownUnit)
	}
	return out, nil
}

// RewriteAll loads every known unit plus extra ones (units only defined by
// transformers) concurrently. A unit that fails does not stop the others;
// the returned error is only set when ctx ends the batch.
func (l *Launcher) RewriteAll(ctx context.Context, extra ...string) ([]Result, error) {
	units := l.Units()
	for _, u := range extra {
		if !slices.Contains(units, u) {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return nil, nil
	}

	// indexes are unique per goroutine, no lock needed
	results := make([]Result, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(l.workers, len(units)))

	for i, unit := range units {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			l.mu.RLock()
			src := l.sources[unit]
			l.mu.RUnlock()

			out, err := l.load(gctx, unit, transform.ReasonClassloading)
			results[i] = Result{Unit: unit, Data: out, Err: err}
			if err == nil {
				results[i].Changed = len(src.Data) == 0 || &out[0] != &src.Data[0]
			} else {
				l.logger.Error("unit rewrite failed", "unit", unit, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// PersistAudit saves the pipeline's audit trail under this launch.
func (l *Launcher) PersistAudit(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	launch := storage.Launch{ID: l.id, Root: l.root, StartedAt: l.startedAt}
	if err := l.store.SaveTrail(ctx, launch, l.pipeline.Trail()); err != nil {
		return fmt.Errorf("persist audit for launch %s: %w", l.id, err)
	}
	return nil
}
