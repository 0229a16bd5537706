package driver

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/boreq/errors"
	"github.com/boreq/kv_benchmark/workload"
	"golang.org/x/sync/errgroup"
)

// RunStep runs the preload and scan benchmark. Every worker draws keys from a
// stream seeded with its own index and inserts them with empty values, the
// scan then opens cursors at the same keys.
func (d *Driver) RunStep(ctx context.Context, profile workload.Profile, threads int) (Result, error) {
	if threads <= 0 {
		return Result{Engine: d.name}, fmt.Errorf("thread count must be positive, got %d", threads)
	}
	if profile.PreloadBatch <= 0 || profile.OpBatch <= 0 {
		return Result{Engine: d.name}, errors.New("profile batch sizes must be positive")
	}

	return d.runPhases(ctx, []phase{
		{PhasePreload, func() (Measurement, int, error) { return d.preload(profile, threads) }},
		{PhaseScan, func() (Measurement, int, error) { return d.scanStep(profile, threads) }},
		{PhaseSize, d.size},
	})
}

func (d *Driver) workerStream(thread int) *workload.Generator {
	return workload.NewGenerator(workload.Config{
		KeySize:   d.config.Workload.KeySize,
		ValueSize: 0,
		Seed:      uint64(thread),
	})
}

func (d *Driver) preload(profile workload.Profile, threads int) (Measurement, int, error) {
	transactions := profile.PreloadCount / profile.PreloadBatch / threads

	var failed atomic.Uint64
	m, err := timed(func() error {
		var group errgroup.Group
		for thread := 0; thread < threads; thread++ {
			stream := d.workerStream(thread)
			group.Go(func() error {
				for i := 0; i < transactions; i++ {
					tx, err := d.engine.BeginWrite()
					if err != nil {
						return errors.Wrap(err, "error beginning a write transaction")
					}

					inserter := tx.Inserter()
					for k := 0; k < profile.PreloadBatch; k++ {
						if err := inserter.Insert(stream.NextKey(), []byte{}); err != nil {
							failed.Add(1)
						}
					}

					if err := tx.Commit(); err != nil {
						return errors.Wrap(err, "error committing")
					}
				}
				return nil
			})
		}
		return group.Wait()
	})

	if n := failed.Load(); n > 0 {
		d.logger.Warn("some inserts failed", "phase", PhasePreload, "failed", n)
	}

	return m, threads * transactions * profile.PreloadBatch, err
}

func (d *Driver) scanStep(profile workload.Profile, threads int) (Measurement, int, error) {
	transactions := profile.OpCount / profile.OpBatch / threads

	var scanned atomic.Uint64
	m, err := timed(func() error {
		var group errgroup.Group
		for thread := 0; thread < threads; thread++ {
			stream := d.workerStream(thread)
			group.Go(func() error {
				for i := 0; i < transactions; i++ {
					n, err := d.scanTransaction(stream, profile)
					if err != nil {
						return err
					}
					scanned.Add(n)
				}
				return nil
			})
		}
		return group.Wait()
	})

	return m, int(scanned.Load()), err
}

func (d *Driver) scanTransaction(stream *workload.Generator, profile workload.Profile) (uint64, error) {
	tx, err := d.engine.BeginRead()
	if err != nil {
		return 0, errors.Wrap(err, "error beginning a read transaction")
	}
	defer tx.Close()

	reader := tx.Reader()

	var scanned uint64
	for k := 0; k < profile.OpBatch; k++ {
		iter, err := reader.RangeFrom(stream.NextKey())
		if err != nil {
			return 0, errors.Wrap(err, "error calling range from")
		}

		for j := 0; j < profile.IterPerScan && iter.Next(); j++ {
			scanned++
		}

		err = iter.Err()
		iter.Close()
		if err != nil {
			return 0, errors.Wrap(err, "iterator error")
		}
	}

	return scanned, nil
}
