package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"weaver/internal/codec"
	"weaver/internal/extractor"
	"weaver/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawler_ScanSelf(t *testing.T) {
	ext, err := extractor.NewExtractor("go")
	require.NoError(t, err)

	c := NewCrawler(ext, nil)
	units := make(map[string]*ir.Unit)

	// Find project root (assumed to be 2 levels up from internal/crawler)
	root, _ := filepath.Abs("../../")

	err = c.ScanProject(root, func(unit *ir.Unit) {
		units[unit.Name] = unit
	})
	require.NoError(t, err)

	t.Run("Extract core units", func(t *testing.T) {
		assert.Greater(t, len(units), 10, "Should find at least 10 units in this project")
	})

	t.Run("Methods merged into their types", func(t *testing.T) {
		crawler, ok := units["crawler/Crawler"]
		require.True(t, ok)
		assert.NotNil(t, crawler.Method("ScanProject", ""))
		assert.NotNil(t, crawler.Field("extractor"))

		pkg, ok := units["crawler"]
		require.True(t, ok)
		assert.NotNil(t, pkg.Method("NewCrawler", ""))
		assert.NotNil(t, pkg.Field("UnitExt"))
	})

	t.Run("Every unit encodes", func(t *testing.T) {
		bin := codec.NewBinary()
		for name, unit := range units {
			_, err := bin.Encode(unit, codec.ComputeFrames)
			assert.NoError(t, err, name)
		}
	})
}

func TestCrawler_ScanUnits(t *testing.T) {
	root := t.TempDir()
	bin := codec.NewBinary()

	data, err := bin.Encode(bin.Synthesize("pkg/X"), codec.NoRewrite)
	require.NoError(t, err)
	path := UnitPath(root, "pkg/X")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	// Junk and ignored directories are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(root, "junk.unit"), []byte("junk"), 0o644))
	ignored := filepath.Join(root, "testdata")
	require.NoError(t, os.MkdirAll(ignored, 0o755))
	require.NoError(t, os.WriteFile(UnitPath(ignored, "Y"), data, 0o644))

	var found []Source
	require.NoError(t, NewCrawler(nil, bin).ScanUnits(root, func(s Source) {
		found = append(found, s)
	}))

	require.Len(t, found, 1)
	assert.Equal(t, "pkg/X", found[0].Unit)
	assert.Equal(t, path, found[0].Path)
	assert.Equal(t, data, found[0].Data)
}
