// Package driver runs the benchmark phases against a single engine.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/boreq/errors"
	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/workload"
	"github.com/dustin/go-humanize"
)

const (
	PhaseBulkLoad         = "bulk_load"
	PhaseIndividualWrites = "individual_writes"
	PhaseBatchWrites      = "batch_writes"
	PhaseLen              = "len"
	PhaseRandomReads      = "random_reads"
	PhaseRandomRangeReads = "random_range_reads"
	PhaseRemovals         = "removals"
	PhaseCompaction       = "compaction"
	PhaseSize             = "size_after_bench"
	PhasePreload          = "preload"
	PhaseScan             = "scan"
)

// PhaseConcurrentReads names the concurrent read phase for the given number
// of threads.
func PhaseConcurrentReads(threads int) string {
	return fmt.Sprintf("random_reads_%d_threads", threads)
}

const (
	defaultRangeScanLength = 10
	maxDeletes             = 10_000
)

var defaultReadThreads = []int{4, 8, 16, 32}

// Config describes the amount of work performed by each phase.
type Config struct {
	Workload workload.Config

	// Elements is the number of elements inserted by the bulk load. Later
	// read phases replay exactly these elements.
	Elements int

	// IndividualWrites is the number of single element write transactions.
	IndividualWrites int

	// BatchWrites is the number of write transactions inserting BatchSize
	// elements each.
	BatchWrites int
	BatchSize   int

	// RangeScanLength is the number of steps taken by every range scan.
	RangeScanLength int

	// Deletes is the number of elements from the start of the stream removed
	// by the last phase.
	Deletes int

	// ReadThreads lists the thread counts of the concurrent read phases.
	ReadThreads []int
}

// ConfigFromProfile derives the phase sizes from an operation size profile.
func ConfigFromProfile(profile workload.Profile, w workload.Config) Config {
	batchWrites := 0
	if profile.PreloadBatch > 0 {
		batchWrites = profile.OpCount / profile.PreloadBatch
	}

	return Config{
		Workload:         w,
		Elements:         profile.PreloadCount,
		IndividualWrites: profile.OpBatch,
		BatchWrites:      batchWrites,
		BatchSize:        profile.PreloadBatch,
		RangeScanLength:  defaultRangeScanLength,
		Deletes:          min(maxDeletes, profile.PreloadCount),
		ReadThreads:      append([]int(nil), defaultReadThreads...),
	}
}

func (c Config) Validate() error {
	if err := c.Workload.Validate(); err != nil {
		return errors.Wrap(err, "invalid workload config")
	}
	if c.Elements <= 0 {
		return errors.New("number of elements must be positive")
	}
	if c.IndividualWrites < 0 || c.BatchWrites < 0 || c.BatchSize < 0 {
		return errors.New("write counts can't be negative")
	}
	if c.BatchWrites > 0 && c.BatchSize == 0 {
		return errors.New("batch size must be positive when batch writes are enabled")
	}
	if c.RangeScanLength <= 0 {
		return errors.New("range scan length must be positive")
	}
	if c.Deletes < 0 || c.Deletes > c.Elements {
		return fmt.Errorf("deletes must be in range [0, %d], got %d", c.Elements, c.Deletes)
	}
	for _, threads := range c.ReadThreads {
		if threads <= 0 {
			return fmt.Errorf("thread count must be positive, got %d", threads)
		}
	}
	return nil
}

// ExpectedLen is the number of keys stored after all write phases, assuming
// no generated keys collide.
func (c Config) ExpectedLen() uint64 {
	return uint64(c.Elements + c.IndividualWrites + c.BatchWrites*c.BatchSize)
}

type Option func(d *Driver)

// WithLogger sets the logger used to report finished phases.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithName sets the engine name put in the result and in log lines.
func WithName(name string) Option {
	return func(d *Driver) {
		d.name = name
	}
}

// WithDirectory sets the directory holding the engine's files. Without it
// the size is reported as not applicable.
func WithDirectory(dir string) Option {
	return func(d *Driver) {
		d.directory = dir
	}
}

// Driver owns no resources, the engine must be closed by the caller after
// the run completes. A Driver runs one benchmark at a time.
type Driver struct {
	engine    kv.Engine
	config    Config
	name      string
	directory string
	logger    *slog.Logger
}

func New(engine kv.Engine, config Config, options ...Option) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	d := &Driver{
		engine: engine,
		config: config,
		name:   "engine",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(d)
	}

	d.logger = d.logger.With(slog.String("engine", d.name))

	return d, nil
}

type phase struct {
	name string
	fn   func() (Measurement, int, error)
}

// Run executes all phases in order. The first failing phase aborts the run;
// the partial result is returned together with the error. The context is
// only checked between phases.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	stream := workload.NewGenerator(d.config.Workload)

	phases := []phase{
		{PhaseBulkLoad, func() (Measurement, int, error) { return d.bulkLoad(stream) }},
		{PhaseIndividualWrites, func() (Measurement, int, error) { return d.individualWrites(stream) }},
		{PhaseBatchWrites, func() (Measurement, int, error) { return d.batchWrites(stream) }},
		{PhaseLen, d.checkLen},
		{PhaseRandomReads, d.randomReads},
		{PhaseRandomRangeReads, d.randomRangeReads},
	}

	for _, threads := range d.config.ReadThreads {
		threads := threads
		phases = append(phases, phase{
			PhaseConcurrentReads(threads),
			func() (Measurement, int, error) { return d.concurrentReads(threads) },
		})
	}

	phases = append(phases,
		phase{PhaseRemovals, d.removals},
		phase{PhaseCompaction, d.compaction},
		phase{PhaseSize, d.size},
	)

	return d.runPhases(ctx, phases)
}

func (d *Driver) runPhases(ctx context.Context, phases []phase) (Result, error) {
	result := Result{Engine: d.name}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "run interrupted")
		}

		measurement, operations, err := p.fn()
		if err != nil {
			return result, errors.Wrap(err, fmt.Sprintf("phase %s failed", p.name))
		}

		result.add(p.name, measurement, operations)
		d.logPhase(p.name, measurement, operations)
	}

	return result, nil
}

func (d *Driver) logPhase(name string, measurement Measurement, operations int) {
	attrs := []any{slog.String("phase", name)}

	switch measurement.Kind {
	case Duration:
		attrs = append(attrs, slog.Duration("duration", measurement.Duration))
	case SizeInBytes:
		attrs = append(attrs, slog.String("size", measurement.String()))
	default:
		attrs = append(attrs, slog.String("result", measurement.String()))
	}

	if operations > 0 {
		attrs = append(attrs, slog.Int("operations", operations))
		if measurement.Kind == Duration && measurement.Duration > 0 {
			perSecond := float64(operations) / measurement.Duration.Seconds()
			attrs = append(attrs, slog.String("ops_per_second", humanize.Comma(int64(perSecond))))
		}
	}

	d.logger.Info("phase done", attrs...)
}

func timed(fn func() error) (Measurement, error) {
	start := time.Now()
	if err := fn(); err != nil {
		return Measurement{}, err
	}
	return NewDuration(time.Since(start)), nil
}
