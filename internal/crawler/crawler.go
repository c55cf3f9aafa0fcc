package crawler

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"weaver/internal/codec"
	"weaver/internal/extractor"
	"weaver/internal/ir"
)

// UnitExt is the file extension of encoded units.
const UnitExt = ".unit"

// Source is an encoded unit found on disk.
type Source struct {
	Unit string
	Path string
	Data []byte
}

// Crawler scans a directory for source files.
type Crawler struct {
	extractor *extractor.Extractor
	codec     codec.Codec
	ignored   []string
}

// NewCrawler creates a new crawler instance. ext may be nil when only
// encoded units are scanned.
func NewCrawler(ext *extractor.Extractor, c codec.Codec) *Crawler {
	if c == nil {
		c = codec.NewBinary()
	}
	return &Crawler{
		extractor: ext,
		codec:     c,
		ignored:   []string{".git", "vendor", "node_modules", "testdata"},
	}
}

func (c *Crawler) skipDir(d fs.DirEntry, path, root string) bool {
	if path == root {
		return false
	}
	// the go tool's convention for directories it never builds
	if strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") {
		return true
	}
	for _, ign := range c.ignored {
		if d.Name() == ign {
			return true
		}
	}
	return false
}

// ScanUnits walks root and streams every decodable .unit file. The bytes
// are handed over as read so untouched units can be passed through.
func (c *Crawler) ScanUnits(root string, onUnit func(Source)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if c.skipDir(d, path, root) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(d.Name(), UnitExt) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		unit, err := c.codec.Decode(data)
		if err != nil {
			// Not ours; continue instead of failing the whole scan
			return nil
		}

		onUnit(Source{Unit: unit.Name, Path: path, Data: data})
		return nil
	})
}

// ScanProject walks root, extracts units from Go files and streams them
// once per directory after merging methods declared apart from their types.
func (c *Crawler) ScanProject(root string, onUnit func(*ir.Unit)) error {
	byDir := make(map[string][]*ir.Unit)
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if c.skipDir(d, path, root) {
				return filepath.SkipDir
			}
			return nil
		}

		// Only process Go files
		if !strings.HasSuffix(d.Name(), ".go") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}

		units, err := c.extractor.ExtractFromFile(path)
		if err != nil {
			return nil
		}

		dir := filepath.Dir(path)
		if _, seen := byDir[dir]; !seen {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], units...)
		return nil
	})
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		for _, unit := range extractor.MergeUnits(byDir[dir]) {
			onUnit(unit)
		}
	}
	return nil
}

// UnitPath is where unit is stored below dir.
func UnitPath(dir, unit string) string {
	return filepath.Join(dir, filepath.FromSlash(unit)+UnitExt)
}
