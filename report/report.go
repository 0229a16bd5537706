package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/boreq/errors"
	"github.com/wcharczuk/go-chart/v2"
	"golang.org/x/tools/benchmark/parse"
)

// BenchResults holds results read back from the bench format output.
type BenchResults struct {
	Goos               string
	Goarch             string
	Cpu                string
	PerformanceResults []PerformanceBenchResult
	SizeResults        []SizeBenchResult
}

type PerformanceBenchResult struct {
	Phase   string
	Engines []EnginePerformanceBenchResult
}

type SizeBenchResult struct {
	Phase   string
	Engines []EngineSizeBenchResult
}

type EnginePerformanceBenchResult struct {
	EngineName string
	NsOp       float64
}

type EngineSizeBenchResult struct {
	EngineName string
	N          int64
	BytesOp    float64
}

func GetBenchResults(r io.Reader) (BenchResults, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return BenchResults{}, errors.Wrap(err, "error reading all")
	}

	var result BenchResults

	scan := bufio.NewScanner(bytes.NewReader(b))
	for scan.Scan() {
		if err := parseLine(scan.Text(), &result); err != nil {
			return BenchResults{}, errors.Wrap(err, "error parsing the environment")
		}
	}

	if err := scan.Err(); err != nil {
		return BenchResults{}, errors.Wrap(err, "scan error")
	}

	if result.Cpu == "" || result.Goarch == "" || result.Goos == "" {
		return BenchResults{}, fmt.Errorf("missing execution environment info in output: '%+v'", result)
	}

	performanceResults, err := getPerformanceBenchResults(bytes.NewReader(b))
	if err != nil {
		return BenchResults{}, errors.Wrap(err, "error getting performance results")
	}

	sizeResults, err := getSizeBenchResults(bytes.NewReader(b))
	if err != nil {
		return BenchResults{}, errors.Wrap(err, "error getting size results")
	}

	result.PerformanceResults = performanceResults
	result.SizeResults = sizeResults

	return result, err
}

const lineSep = ":"

// parseLine reads the execution environment lines printed by go test.
// Other lines are skipped.
func parseLine(line string, result *BenchResults) error {
	key, value, ok := strings.Cut(line, lineSep)
	if !ok {
		return nil
	}

	var target *string
	switch key {
	case "goos":
		target = &result.Goos
	case "goarch":
		target = &result.Goarch
	case "cpu":
		target = &result.Cpu
	default:
		return nil
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty %s", key)
	}
	if *target != "" && *target != value {
		return fmt.Errorf("conflicting %s: '%s' and '%s'", key, *target, value)
	}

	*target = value
	return nil
}

func getPerformanceBenchResults(r io.Reader) ([]PerformanceBenchResult, error) {
	var results []PerformanceBenchResult

	set, err := parse.ParseSet(r)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing set")
	}

	for _, benchmarks := range set {
		for _, benchmark := range benchmarks {
			if !strings.HasPrefix(benchmark.Name, performancePrefix+"/") {
				continue
			}

			engineName, phase, err := ParseBenchmarkName(benchmark.Name)
			if err != nil {
				return nil, errors.Wrap(err, "error parsing benchmark name")
			}

			bench, ok := findPerformanceBenchmark(results, phase)
			if !ok {
				results = append(results, PerformanceBenchResult{
					Phase: phase,
				})
				bench = &results[len(results)-1]
			}

			bench.Engines = append(bench.Engines, EnginePerformanceBenchResult{
				EngineName: engineName,
				NsOp:       benchmark.NsPerOp,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})

	for _, result := range results {
		sort.Slice(result.Engines, func(i, j int) bool {
			return result.Engines[i].EngineName < result.Engines[j].EngineName
		})
	}

	return results, nil
}

func getSizeBenchResults(r io.Reader) ([]SizeBenchResult, error) {
	var results []SizeBenchResult

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		fields := strings.Fields(scan.Text())
		if len(fields) != 4 {
			continue
		}

		benchName := fields[0]
		benchN := fields[1]
		benchValue := fields[2]
		benchUnit := fields[3]

		if !strings.HasPrefix(benchName, sizePrefix+"/") {
			continue
		}

		if benchUnit != "bytes/op" {
			return nil, errors.New("invalid unit")
		}

		engineName, phase, err := ParseBenchmarkName(benchName)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing benchmark name")
		}

		bench, ok := findSizeBenchmark(results, phase)
		if !ok {
			results = append(results, SizeBenchResult{
				Phase: phase,
			})
			bench = &results[len(results)-1]
		}

		f, err := strconv.ParseFloat(benchValue, 64)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing value")
		}

		n, err := strconv.ParseInt(benchN, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing n")
		}

		bench.Engines = append(bench.Engines, EngineSizeBenchResult{
			EngineName: engineName,
			N:          n,
			BytesOp:    f,
		})
	}

	if err := scan.Err(); err != nil {
		return nil, errors.Wrap(err, "scan error")
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})

	for _, result := range results {
		sort.Slice(result.Engines, func(i, j int) bool {
			return result.Engines[i].EngineName < result.Engines[j].EngineName
		})
	}

	return results, nil
}

const (
	chartWidth    = 2000
	chartBarWidth = 300
)

func MakePerformanceResultChart(result PerformanceBenchResult) (chart.BarChart, error) {
	graph := chart.BarChart{
		Title: result.Phase,
		Background: chart.Style{
			Padding: chart.Box{
				Top: 40,
			},
		},
		Height:   512,
		BarWidth: chartBarWidth,
		Width:    chartWidth,
		YAxis: chart.YAxis{
			Name: "ns per op",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 0,
			},
		},
	}

	for _, engine := range result.Engines {
		graph.Bars = append(graph.Bars, chart.Value{
			Label: engine.EngineName,
			Value: engine.NsOp,
		})

		if v := engine.NsOp * 1.1; v > graph.YAxis.Range.GetMax() {
			graph.YAxis.Range.SetMax(v)
		}
	}

	return graph, nil
}

func MakeSizeResultChart(result SizeBenchResult) (chart.BarChart, error) {
	graph := chart.BarChart{
		Title: result.Phase,
		Background: chart.Style{
			Padding: chart.Box{
				Top: 40,
			},
		},
		Height:   512,
		BarWidth: chartBarWidth,
		Width:    chartWidth,
		YAxis: chart.YAxis{
			Name: "bytes",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 0,
			},
		},
	}

	for _, engine := range result.Engines {
		graph.Bars = append(graph.Bars, chart.Value{
			Label: engine.EngineName,
			Value: engine.BytesOp,
		})

		if v := engine.BytesOp * 1.1; v > graph.YAxis.Range.GetMax() {
			graph.YAxis.Range.SetMax(v)
		}
	}

	return graph, nil
}

// ParseBenchmarkName splits a benchmark name into the engine name and the
// phase name.
func ParseBenchmarkName(name string) (string, string, error) {
	split := strings.SplitN(name, "/", 3)
	if len(split) != 3 {
		return "", "", errors.New("invalid name")
	}

	return split[1], split[2], nil
}

func findPerformanceBenchmark(results []PerformanceBenchResult, phase string) (*PerformanceBenchResult, bool) {
	for i := range results {
		if results[i].Phase == phase {
			return &results[i], true
		}
	}
	return nil, false
}

func findSizeBenchmark(results []SizeBenchResult, phase string) (*SizeBenchResult, bool) {
	for i := range results {
		if results[i].Phase == phase {
			return &results[i], true
		}
	}
	return nil, false
}
