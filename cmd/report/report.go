package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/boreq/errors"
	"github.com/boreq/kv_benchmark/report"
	"github.com/dustin/go-humanize"
	gochart "github.com/wcharczuk/go-chart/v2"
)

// Reads the output of kvbench --bench-output from stdin and renders charts
// and a README into the results directory.
func main() {
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	results, err := report.GetBenchResults(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "error getting bench results")
	}

	directory := path.Join(
		"results",
		fmt.Sprintf("%s-%s-%s", results.Cpu, results.Goarch, results.Goos),
	)

	if err := os.RemoveAll(directory); err != nil {
		return errors.Wrap(err, "error removing directory")
	}

	if err := os.MkdirAll(directory, 0700); err != nil {
		return errors.Wrap(err, "error recreating directory")
	}

	readmeBuffer := bytes.NewBuffer(nil)
	readmeBuffer.WriteString("# Results\n")
	readmeBuffer.WriteString("```\n")
	readmeBuffer.WriteString(fmt.Sprintf("goarch=%s\n", results.Goarch))
	readmeBuffer.WriteString(fmt.Sprintf("goos=%s\n", results.Goos))
	readmeBuffer.WriteString(fmt.Sprintf("cpu=%s\n", results.Cpu))
	readmeBuffer.WriteString("```\n")

	readmeBuffer.WriteString("## Phases\n")

	for _, result := range results.PerformanceResults {
		resultsChart, err := report.MakePerformanceResultChart(result)
		if err != nil {
			return errors.Wrap(err, "error creating chart")
		}

		filename := fmt.Sprintf(
			"%s.png",
			strings.Replace(result.Phase, string(os.PathSeparator), "-", -1),
		)

		f, err := os.Create(path.Join(directory, filename))
		if err != nil {
			return errors.Wrap(err, "error creating chart file")
		}

		if err := resultsChart.Render(gochart.PNG, f); err != nil {
			f.Close()
			return errors.Wrap(err, "error rendering the chart")
		}

		if err := f.Close(); err != nil {
			return errors.Wrap(err, "error closing chart file")
		}

		readmeBuffer.WriteString(fmt.Sprintf("### %s\n", result.Phase))
		readmeBuffer.WriteString(fmt.Sprintf("![](./%s)\n", filename))
		readmeBuffer.WriteString("```\n")
		sort.Slice(result.Engines, func(i, j int) bool {
			return result.Engines[i].NsOp < result.Engines[j].NsOp
		})
		for _, engine := range result.Engines {
			readmeBuffer.WriteString(fmt.Sprintf("%20s = %s\n", engine.EngineName, time.Duration(engine.NsOp)))
		}
		readmeBuffer.WriteString("```\n")

	}

	readmeBuffer.WriteString("## Size\n")
	readmeBuffer.WriteString("\n")
	readmeBuffer.WriteString("Warning: bbolt sizes are not reliable as bbolt grows its file in large increments and preallocates the initial memory map. Sizes of LSM engines depend on whether a compaction ran before the measurement.")
	readmeBuffer.WriteString("\n")

	for _, result := range results.SizeResults {
		resultsChart, err := report.MakeSizeResultChart(result)
		if err != nil {
			return errors.Wrap(err, "error creating chart")
		}

		filename := fmt.Sprintf(
			"%s.png",
			strings.Replace(result.Phase, string(os.PathSeparator), "-", -1),
		)

		f, err := os.Create(path.Join(directory, filename))
		if err != nil {
			return errors.Wrap(err, "error creating chart file")
		}

		if err := resultsChart.Render(gochart.PNG, f); err != nil {
			f.Close()
			return errors.Wrap(err, "error rendering the chart")
		}

		if err := f.Close(); err != nil {
			return errors.Wrap(err, "error closing chart file")
		}

		readmeBuffer.WriteString(fmt.Sprintf("### %s\n", result.Phase))
		readmeBuffer.WriteString(fmt.Sprintf("![](./%s)\n", filename))
		readmeBuffer.WriteString("```\n")
		sort.Slice(result.Engines, func(i, j int) bool {
			return result.Engines[i].BytesOp < result.Engines[j].BytesOp
		})
		for _, engine := range result.Engines {
			readmeBuffer.WriteString(fmt.Sprintf("%20s = %s (n=%d)\n", engine.EngineName, humanize.IBytes(uint64(engine.BytesOp)), engine.N))
		}
		readmeBuffer.WriteString("```\n")

	}

	readmeFile, err := os.Create(path.Join(directory, "README.md"))
	if err != nil {
		return errors.Wrap(err, "error creating readme")
	}

	defer readmeFile.Close()

	if _, err := readmeBuffer.WriteTo(readmeFile); err != nil {
		return errors.Wrap(err, "error writing to readme file")
	}

	return readmeFile.Close()
}
