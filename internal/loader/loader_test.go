package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weaver/internal/codec"
	"weaver/internal/crawler"
	"weaver/internal/ir"
	"weaver/internal/plugin"
	"weaver/internal/storage"
	"weaver/internal/transform"
)

// watcher records the launch hooks it receives.
type watcher struct {
	resources []plugin.Resource
	fetch     plugin.Fetcher
	announced int
}

func (w *watcher) Name() string { return "watcher" }

func (w *watcher) Phases(string, bool, string) []plugin.Phase { return nil }

func (w *watcher) Process(plugin.Phase, *ir.Unit, string, string) codec.Flags {
	return codec.NoRewrite
}

func (w *watcher) AddResources(r []plugin.Resource) { w.resources = append(w.resources, r...) }

func (w *watcher) InitializeLaunch(fetch plugin.Fetcher) {
	w.fetch = fetch
	w.announced++
}

type env struct {
	bin      *codec.Binary
	registry *transform.Registry
	plugins  *plugin.Registry
	watcher  *watcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		bin:      codec.NewBinary(),
		registry: transform.NewRegistry(nil),
		plugins:  plugin.NewRegistry(),
		watcher:  &watcher{},
	}
	require.NoError(t, e.plugins.Register(e.watcher))
	return e
}

func (e *env) source(t *testing.T, name string) crawler.Source {
	t.Helper()
	u := e.bin.Synthesize(name)
	u.Fields = append(u.Fields, &ir.Field{Access: ir.AccPrivate, Name: "f", Descriptor: "int"})
	data, err := e.bin.Encode(u, codec.NoRewrite)
	require.NoError(t, err)
	return crawler.Source{Unit: name, Path: name + crawler.UnitExt, Data: data}
}

func (e *env) launcher(opts ...Option) *Launcher {
	p := transform.NewPipeline(e.registry, e.plugins, transform.WithCodec(e.bin))
	return New(p, opts...)
}

func publicize(unit string) transform.Transformer[*ir.Field] {
	return transform.SimpleField(unit, "f", func(f *ir.Field) *ir.Field {
		f.Access = f.Access.WithVisibility(ir.AccPublic)
		return f
	})
}

func TestLauncher_LoadAndFetch(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, transform.RegisterTargets(e.registry, publicize("A"), transform.ProviderName("svcA")))
	l := e.launcher()
	a, b := e.source(t, "A"), e.source(t, "B")
	l.AddSource(a)
	l.AddSource(b)

	_, err := uuid.Parse(l.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, l.Units())

	out, err := l.Load(context.Background(), "A")
	require.NoError(t, err)
	u, err := e.bin.Decode(out)
	require.NoError(t, err)
	assert.True(t, u.Field("f").Access.Has(ir.AccPublic))

	untouched, err := l.Load(context.Background(), "B")
	require.NoError(t, err)
	assert.Same(t, &b.Data[0], &untouched[0])

	_, err = l.Load(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrUnknownUnit)

	l.Start()
	l.Start()
	assert.Equal(t, 1, e.watcher.announced)
	require.NotNil(t, e.watcher.fetch)
	fetched, err := e.watcher.fetch("A", transform.ReasonComputingFrames)
	require.NoError(t, err)
	assert.NotEmpty(t, fetched)
}

func TestLauncher_RewriteAll(t *testing.T) {
	e := newEnv(t)
	owner := transform.ProviderName("svcA")
	require.NoError(t, transform.RegisterTargets(e.registry, publicize("A"), owner))
	require.NoError(t, transform.RegisterTargets(e.registry, transform.SimpleUnit("Gen", func(u *ir.Unit) *ir.Unit { return u }), owner))
	veto := transform.SimpleField("C", "f", func(f *ir.Field) *ir.Field { return nil })
	require.NoError(t, transform.RegisterTargets(e.registry, veto, owner))

	l := e.launcher(WithWorkers(2))
	for _, name := range []string{"A", "B", "C"} {
		l.AddSource(e.source(t, name))
	}

	results, err := l.RewriteAll(context.Background(), "Gen", "Nothing")
	require.NoError(t, err)
	require.Len(t, results, 5)

	byUnit := make(map[string]Result, len(results))
	for _, r := range results {
		byUnit[r.Unit] = r
	}
	assert.True(t, byUnit["A"].Changed)
	assert.NoError(t, byUnit["A"].Err)
	assert.False(t, byUnit["B"].Changed)
	assert.ErrorIs(t, byUnit["C"].Err, transform.ErrNodeType, "a failing unit does not stop the batch")
	assert.True(t, byUnit["Gen"].Changed, "units defined from nothing are produced")
	assert.ErrorIs(t, byUnit["Nothing"].Err, ErrUnknownUnit)
}

func TestLauncher_DiscoverAndPersist(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, transform.RegisterTargets(e.registry, publicize("pkg/A"), transform.ProviderName("svcA")))

	root := t.TempDir()
	src := e.source(t, "pkg/A")
	path := crawler.UnitPath(root, "pkg/A")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, src.Data, 0o644))

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	l := e.launcher(WithStore(store))
	require.NoError(t, l.Discover(crawler.NewCrawler(nil, e.bin), root))
	require.Len(t, e.watcher.resources, 1)
	assert.Equal(t, plugin.Resource{Name: "pkg/A", Path: path}, e.watcher.resources[0])

	_, err = l.Load(context.Background(), "pkg/A")
	require.NoError(t, err)
	require.NoError(t, l.PersistAudit(context.Background()))

	latest, err := store.LatestLaunch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, l.ID(), latest.ID)
	assert.Equal(t, root, latest.Root)

	trail, err := store.LoadTrail(context.Background(), l.ID())
	require.NoError(t, err)
	assert.Equal(t, "re:classloading,xf:svcA:default", trail.AuditString("pkg/A"))
}
