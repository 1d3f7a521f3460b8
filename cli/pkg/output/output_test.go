package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

type item struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func newPrinter(f Format) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(f, &out, &errOut), &out, &errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: "JSON", want: FormatJSON},
		{in: " yaml ", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusLines(t *testing.T) {
	p, out, errOut := newPrinter(FormatTable)

	p.Success("Sent %d events", 3)
	p.Warn("Disk usage is %d%%", 95)
	p.Info("plain")
	p.Error("Failed to connect to %s", "signin")

	assert.Contains(t, out.String(), "✓ Sent 3 events")
	assert.Contains(t, out.String(), "⚠ Disk usage is 95%")
	assert.Contains(t, out.String(), "plain")
	assert.Contains(t, errOut.String(), "✗ Failed to connect to signin")
	assert.NotContains(t, out.String(), "✗")
}

func TestStatusLines_MachineFormatsUseStderr(t *testing.T) {
	p, out, errOut := newPrinter(FormatJSON)
	p.Success("done")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "done")
}

func TestPrint_JSON(t *testing.T) {
	p, out, _ := newPrinter(FormatJSON)
	require.NoError(t, p.Print([]item{{Name: "a", Count: 1}}, nil))

	var parsed []item
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	assert.Equal(t, []item{{Name: "a", Count: 1}}, parsed)
	assert.Contains(t, out.String(), "  \"name\"")
}

func TestPrint_YAML(t *testing.T) {
	p, out, _ := newPrinter(FormatYAML)
	require.NoError(t, p.Print(item{Name: "b", Count: 2}, nil))

	var parsed item
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &parsed))
	assert.Equal(t, item{Name: "b", Count: 2}, parsed)
}

func TestPrint_Table(t *testing.T) {
	p, out, _ := newPrinter(FormatTable)
	err := p.Print(nil, func() *Table {
		tbl := NewTable("NAME", "COUNT")
		tbl.AddRow("alpha", "10")
		tbl.AddRow("b", "2")
		return tbl
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME   COUNT", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "-----  -----", strings.TrimRight(lines[1], " "))
	assert.Equal(t, "alpha  10", strings.TrimRight(lines[2], " "))
	assert.Equal(t, "b      2", strings.TrimRight(lines[3], " "))
}
