package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/boreq/errors"
	"github.com/boreq/kv_benchmark/driver"
)

type Table struct {
	Engines []string
	Rows    []Row

	// Highlight marks the best cell of every row in bold.
	Highlight bool
}

type Row struct {
	Phase string
	Cells []Cell
}

type Cell struct {
	Measurement driver.Measurement
	Best        bool
}

// markBest marks the smallest measurement. Rows with fewer than two
// comparable measurements have no best cell.
func (r *Row) markBest() {
	best := -1
	comparable := 0
	for i, cell := range r.Cells {
		if cell.Measurement.Kind == driver.NotApplicable {
			continue
		}
		comparable++
		if best < 0 || cell.Measurement.Less(r.Cells[best].Measurement) {
			best = i
		}
	}

	if best >= 0 && comparable > 1 {
		r.Cells[best].Best = true
	}
}

func (t Table) render(cell Cell) string {
	s := cell.Measurement.String()
	if t.Highlight && cell.Best {
		return "**" + s + "**"
	}
	return s
}

// WriteMarkdown renders the table as a markdown table padded so that it is
// also readable as plain text.
func (t Table) WriteMarkdown(w io.Writer) error {
	header := append([]string{""}, t.Engines...)

	lines := [][]string{header}
	for _, row := range t.Rows {
		line := []string{row.Phase}
		for _, cell := range row.Cells {
			line = append(line, t.render(cell))
		}
		lines = append(lines, line)
	}

	widths := make([]int, len(header))
	for _, line := range lines {
		for i, s := range line {
			widths[i] = max(widths[i], utf8.RuneCountInString(s), 3)
		}
	}

	var b strings.Builder
	for i, line := range lines {
		writeMarkdownLine(&b, line, widths)
		if i == 0 {
			separator := make([]string, len(widths))
			for j, width := range widths {
				separator[j] = strings.Repeat("-", width)
			}
			writeMarkdownLine(&b, separator, widths)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, "error writing the table")
	}
	return nil
}

func writeMarkdownLine(b *strings.Builder, line []string, widths []int) {
	b.WriteString("|")
	for i, s := range line {
		fmt.Fprintf(b, " %s%s |", s, strings.Repeat(" ", widths[i]-utf8.RuneCountInString(s)))
	}
	b.WriteString("\n")
}
