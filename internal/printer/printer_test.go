package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut}, &out, &errOut
}

func TestPrinter_Lines(t *testing.T) {
	p, out, _ := capture(t)

	p.Step("scanning %s", "src")
	p.Success("%d units", 3)
	p.Warning("skipped %s", "junk.unit")
	p.Info("plain")

	assert.Equal(t, "→ scanning src\n✓ 3 units\n⚠️  skipped junk.unit\nplain\n", out.String())
}

func TestPrinter_Error(t *testing.T) {
	p, out, errOut := capture(t)

	err := p.Error("Rewrite failed", "2 units were abandoned", map[string]string{"unit": "pkg/X", "launch": "abc"})

	assert.EqualError(t, err, "Rewrite failed")
	assert.Empty(t, out.String())
	assert.Equal(t, "Rewrite failed\n\n2 units were abandoned\n\n  launch: abc\n  unit: pkg/X\n", errOut.String())
}
