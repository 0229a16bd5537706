package report

import (
	"fmt"
	"io"

	"github.com/boreq/errors"
	"github.com/boreq/kv_benchmark/driver"
)

const (
	performancePrefix = "BenchmarkPhase"
	sizePrefix        = "BenchmarkSize"
)

// Environment describes the machine the results were collected on.
type Environment struct {
	Goos   string
	Goarch string
	Cpu    string
}

// Collector gathers results of several engines. Results are kept in the
// order they were added.
type Collector struct {
	results []driver.Result
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add records a result. Adding a second result for the same engine replaces
// the first one.
func (c *Collector) Add(result driver.Result) {
	for i := range c.results {
		if c.results[i].Engine == result.Engine {
			c.results[i] = result
			return
		}
	}
	c.results = append(c.results, result)
}

func (c *Collector) Results() []driver.Result {
	return append([]driver.Result(nil), c.results...)
}

// Table lays the results out with one row per phase, in the order in which
// the phases were first seen, and one column per engine.
func (c *Collector) Table() Table {
	table := Table{}

	rowIndex := make(map[string]int)
	for _, result := range c.results {
		table.Engines = append(table.Engines, result.Engine)

		for _, entry := range result.Entries {
			if _, ok := rowIndex[entry.Phase]; !ok {
				rowIndex[entry.Phase] = len(table.Rows)
				table.Rows = append(table.Rows, Row{Phase: entry.Phase})
			}
		}
	}

	for i := range table.Rows {
		table.Rows[i].Cells = make([]Cell, len(c.results))
		for j, result := range c.results {
			measurement, ok := result.Get(table.Rows[i].Phase)
			if !ok {
				measurement = driver.NewNotApplicable()
			}
			table.Rows[i].Cells[j] = Cell{Measurement: measurement}
		}
		table.Rows[i].markBest()
	}

	return table
}

// WriteBenchFormat writes the results in the format produced by go test
// -bench so that they can be read back with GetBenchResults. Measurements
// which are not applicable are skipped.
func (c *Collector) WriteBenchFormat(w io.Writer, env Environment) error {
	if _, err := fmt.Fprintf(w, "goos: %s\ngoarch: %s\ncpu: %s\n", env.Goos, env.Goarch, env.Cpu); err != nil {
		return errors.Wrap(err, "error writing the header")
	}

	for _, result := range c.results {
		for _, entry := range result.Entries {
			var err error
			switch entry.Measurement.Kind {
			case driver.Duration:
				_, err = fmt.Fprintf(w, "%s/%s/%s\t1\t%d ns/op\n", performancePrefix, result.Engine, entry.Phase, entry.Measurement.Duration.Nanoseconds())
			case driver.SizeInBytes:
				_, err = fmt.Fprintf(w, "%s/%s/%s\t1\t%d bytes/op\n", sizePrefix, result.Engine, entry.Phase, entry.Measurement.Bytes)
			}
			if err != nil {
				return errors.Wrap(err, "error writing a result")
			}
		}
	}

	return nil
}
