// Package main provides the CLI entry point for kvbench, which runs the same
// deterministic workload against several embedded key-value stores.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/boreq/errors"
	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/driver"
	"github.com/boreq/kv_benchmark/report"
	"github.com/boreq/kv_benchmark/workload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const maxMapSize = 4 << 30

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	profile     string
	dir         string
	engines     []string
	seed        uint64
	keySize     int
	valueSize   int
	noSync      bool
	keep        bool
	benchOutput string
	highlight   bool
	mapSize     string
	cacheSize   string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "kvbench",
		Short: "Embedded key-value store benchmark",
		Long: `kvbench inserts a deterministic stream of keys and values into each
selected engine, reads it back in several ways and compares the timings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.profile, "profile", "s",
		"Operation size profile: t, s, m or b")
	flags.StringVar(&cfg.dir, "dir", os.TempDir(),
		"Directory in which engine directories are created")
	flags.StringSliceVar(&cfg.engines, "engines", nil,
		"Engines to benchmark (default: all)")
	flags.Uint64Var(&cfg.seed, "seed", workload.DefaultSeed,
		"Seed of the generated stream")
	flags.IntVar(&cfg.keySize, "key-size", workload.DefaultKeySize,
		"Key size in bytes")
	flags.IntVar(&cfg.valueSize, "value-size", workload.DefaultValueSize,
		"Value size in bytes")
	flags.BoolVar(&cfg.noSync, "no-sync", false,
		"Don't fsync on commit")
	flags.BoolVar(&cfg.keep, "keep", false,
		"Keep engine directories after the benchmark")
	flags.StringVar(&cfg.benchOutput, "bench-output", "",
		"Write results in the go test -bench format to this file")
	flags.BoolVar(&cfg.highlight, "highlight", false,
		"Mark the best result of every phase")
	flags.StringVar(&cfg.mapSize, "map-size", "",
		"Initial memory map size, e.g. 4GiB (default: available disk space capped at 4GiB)")
	flags.StringVar(&cfg.cacheSize, "cache-size", "",
		"Block cache size, e.g. 256MiB (default: engine specific)")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false,
		"Log engine internals")

	runCmd := newRunCmd(cfg)
	root.AddCommand(runCmd)
	root.AddCommand(newStepCmd(cfg))

	// Without a subcommand the full sequence runs with its default flags.
	root.RunE = runCmd.RunE

	return root
}

func newRunCmd(cfg *config) *cobra.Command {
	var readThreads []int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full phase sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := workload.ParseProfile(cfg.profile)
			if err != nil {
				return err
			}

			driverConfig := driver.ConfigFromProfile(profile, cfg.workload())
			driverConfig.ReadThreads = readThreads

			return runEngines(cmd.Context(), cfg, driverConfig, func(ctx context.Context, d *driver.Driver) (driver.Result, error) {
				return d.Run(ctx)
			})
		},
	}

	cmd.Flags().IntSliceVar(&readThreads, "read-threads", []int{4, 8, 16, 32},
		"Thread counts of the concurrent read phases")

	return cmd
}

func newStepCmd(cfg *config) *cobra.Command {
	var threads int

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run the concurrent preload and scan benchmark",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := workload.ParseProfile(cfg.profile)
			if err != nil {
				return err
			}

			driverConfig := driver.ConfigFromProfile(profile, cfg.workload())

			return runEngines(cmd.Context(), cfg, driverConfig, func(ctx context.Context, d *driver.Driver) (driver.Result, error) {
				return d.RunStep(ctx, profile, threads)
			})
		},
	}

	cmd.Flags().IntVarP(&threads, "threads", "t", runtime.NumCPU(),
		"Number of concurrent workers")

	return cmd
}

func (c *config) workload() workload.Config {
	return workload.Config{
		KeySize:   c.keySize,
		ValueSize: c.valueSize,
		Seed:      c.seed,
	}
}

func (c *config) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type runFunc func(ctx context.Context, d *driver.Driver) (driver.Result, error)

func runEngines(ctx context.Context, cfg *config, driverConfig driver.Config, fn runFunc) error {
	logger := cfg.logger()

	if err := driverConfig.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	definitions, err := kv.FindEngines(strings.Join(cfg.engines, ","))
	if err != nil {
		return errors.Wrap(err, "error selecting engines")
	}

	openConfig, err := cfg.openConfig(logger)
	if err != nil {
		return errors.Wrap(err, "error creating the engine config")
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("profile", cfg.profile),
		slog.Int("elements", driverConfig.Elements),
		slog.Uint64("seed", cfg.seed),
		slog.String("map_size", humanize.IBytes(openConfig.MapSize)),
		slog.Int("engines", len(definitions)),
	)

	collector := report.NewCollector()

	var failed []string
	for _, definition := range definitions {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "benchmark interrupted")
		}

		result, err := runEngine(ctx, cfg, logger, definition, driverConfig, openConfig, fn)
		if len(result.Entries) > 0 {
			collector.Add(result)
		}
		if err != nil {
			logger.ErrorContext(ctx, "engine failed", slog.String("engine", definition.Name), slog.Any("err", err))
			failed = append(failed, definition.Name)
		}
	}

	table := collector.Table()
	table.Highlight = cfg.highlight
	if err := table.WriteMarkdown(os.Stdout); err != nil {
		return errors.Wrap(err, "error writing the table")
	}

	if cfg.benchOutput != "" {
		if err := writeBenchOutput(cfg.benchOutput, collector); err != nil {
			return errors.Wrap(err, "error writing the bench output")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("engines failed: %s", strings.Join(failed, ", "))
	}

	return nil
}

func runEngine(
	ctx context.Context,
	cfg *config,
	logger *slog.Logger,
	definition kv.EngineDefinition,
	driverConfig driver.Config,
	openConfig kv.OpenConfig,
	fn runFunc,
) (result driver.Result, err error) {
	dir, err := os.MkdirTemp(cfg.dir, "kvbench-"+definition.Name+"-")
	if err != nil {
		return driver.Result{}, errors.Wrap(err, "error creating the directory")
	}

	if cfg.keep {
		logger.InfoContext(ctx, "keeping engine directory", slog.String("engine", definition.Name), slog.String("dir", dir))
	} else {
		defer func() {
			if removeErr := os.RemoveAll(dir); removeErr != nil {
				logger.ErrorContext(ctx, "error removing the directory", slog.String("dir", dir), slog.Any("err", removeErr))
			}
		}()
	}

	engine, err := definition.Constructor(dir, openConfig)
	if err != nil {
		return driver.Result{}, errors.Wrap(err, "error opening the engine")
	}

	defer func() {
		if closeErr := engine.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "error closing the engine")
		}
	}()

	d, err := driver.New(engine, driverConfig,
		driver.WithName(definition.Name),
		driver.WithDirectory(dir),
		driver.WithLogger(logger),
	)
	if err != nil {
		return driver.Result{}, errors.Wrap(err, "error creating the driver")
	}

	return fn(ctx, d)
}

func (c *config) openConfig(logger *slog.Logger) (kv.OpenConfig, error) {
	openConfig := kv.OpenConfig{
		NoSync: c.noSync,
		Logger: logger,
	}

	if c.cacheSize != "" {
		cacheSize, err := humanize.ParseBytes(c.cacheSize)
		if err != nil {
			return kv.OpenConfig{}, errors.Wrap(err, "invalid cache size")
		}
		openConfig.CacheSize = int64(cacheSize)
	}

	if c.mapSize != "" {
		mapSize, err := humanize.ParseBytes(c.mapSize)
		if err != nil {
			return kv.OpenConfig{}, errors.Wrap(err, "invalid map size")
		}
		openConfig.MapSize = mapSize
		return openConfig, nil
	}

	available, err := kv.AvailableDisk(c.dir)
	if err != nil {
		logger.Warn("error checking available disk space", slog.Any("err", err))
		return openConfig, nil
	}

	openConfig.MapSize = min(available, maxMapSize)
	return openConfig, nil
}

func writeBenchOutput(path string, collector *report.Collector) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error creating the file")
	}
	defer f.Close()

	env := report.Environment{
		Goos:   runtime.GOOS,
		Goarch: runtime.GOARCH,
		Cpu:    cpuName(),
	}

	if err := collector.WriteBenchFormat(f, env); err != nil {
		return errors.Wrap(err, "error writing results")
	}

	return f.Close()
}

// cpuName mimics the cpu line printed by go test.
func cpuName() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return runtime.GOARCH
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}

	return runtime.GOARCH
}
