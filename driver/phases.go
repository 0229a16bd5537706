package driver

import (
	"bytes"

	"github.com/boreq/errors"
	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/workload"
	"golang.org/x/sync/errgroup"
)

func (d *Driver) bulkLoad(stream *workload.Generator) (Measurement, int, error) {
	m, err := timed(func() error {
		return d.write(PhaseBulkLoad, stream, d.config.Elements)
	})
	return m, d.config.Elements, err
}

func (d *Driver) individualWrites(stream *workload.Generator) (Measurement, int, error) {
	m, err := timed(func() error {
		for i := 0; i < d.config.IndividualWrites; i++ {
			if err := d.write(PhaseIndividualWrites, stream, 1); err != nil {
				return err
			}
		}
		return nil
	})
	return m, d.config.IndividualWrites, err
}

func (d *Driver) batchWrites(stream *workload.Generator) (Measurement, int, error) {
	m, err := timed(func() error {
		for i := 0; i < d.config.BatchWrites; i++ {
			if err := d.write(PhaseBatchWrites, stream, d.config.BatchSize); err != nil {
				return err
			}
		}
		return nil
	})
	return m, d.config.BatchWrites * d.config.BatchSize, err
}

// write inserts the next n elements of the stream in a single transaction.
func (d *Driver) write(phase string, stream *workload.Generator, n int) error {
	tx, err := d.engine.BeginWrite()
	if err != nil {
		return errors.Wrap(err, "error beginning a write transaction")
	}

	inserter := tx.Inserter()
	for i := 0; i < n; i++ {
		key, value := stream.Next()
		if err := inserter.Insert(key, value); err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				d.logger.Error("rollback failed", "phase", phase, "err", rollbackErr)
			}
			return errors.Wrap(err, "error inserting")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing")
	}

	return nil
}

func (d *Driver) checkLen() (Measurement, int, error) {
	var n uint64
	m, err := timed(func() error {
		var err error
		n, err = d.len()
		return err
	})
	if err != nil {
		return m, 0, err
	}

	if expected := d.config.ExpectedLen(); n != expected {
		return m, 0, &VerificationError{
			Phase:    PhaseLen,
			What:     "length",
			Expected: expected,
			Actual:   n,
		}
	}

	return m, 1, nil
}

func (d *Driver) len() (uint64, error) {
	tx, err := d.engine.BeginRead()
	if err != nil {
		return 0, errors.Wrap(err, "error beginning a read transaction")
	}
	defer tx.Close()

	n, err := tx.Reader().Len()
	if err != nil {
		return 0, errors.Wrap(err, "error calling len")
	}
	return n, nil
}

func (d *Driver) randomReads() (Measurement, int, error) {
	m, err := timed(func() error {
		stream := workload.NewGenerator(d.config.Workload)
		return d.readAndVerify(PhaseRandomReads, stream, d.config.Elements)
	})
	return m, d.config.Elements, err
}

func (d *Driver) concurrentReads(threads int) (Measurement, int, error) {
	phase := PhaseConcurrentReads(threads)
	length := workload.ShardLength(threads, d.config.Elements)

	shards := make([]*workload.Generator, threads)
	for i := range shards {
		shard, err := workload.NewShard(d.config.Workload, i, threads, d.config.Elements)
		if err != nil {
			return Measurement{}, 0, errors.Wrap(err, "error creating a shard")
		}
		shards[i] = shard
	}

	m, err := timed(func() error {
		var group errgroup.Group
		for _, shard := range shards {
			shard := shard
			group.Go(func() error {
				return d.readAndVerify(phase, shard, length)
			})
		}
		return group.Wait()
	})
	return m, threads * length, err
}

// readAndVerify looks up the next n keys of the stream in a single read
// transaction and compares the first bytes of the returned values with the
// ones the stream produced.
func (d *Driver) readAndVerify(phase string, stream *workload.Generator, n int) error {
	tx, err := d.engine.BeginRead()
	if err != nil {
		return errors.Wrap(err, "error beginning a read transaction")
	}
	defer tx.Close()

	reader := tx.Reader()

	var expected, actual, missing uint64
	for i := 0; i < n; i++ {
		key, value := stream.Next()
		expected += checksum(value)

		stored, ok, err := reader.Get(key)
		if err != nil {
			return errors.Wrap(err, "error calling get")
		}
		if !ok {
			missing++
			continue
		}
		actual += checksum(stored)
	}

	if missing > 0 {
		return &VerificationError{
			Phase:    phase,
			What:     "missing keys",
			Expected: 0,
			Actual:   missing,
		}
	}

	if expected != actual {
		return &VerificationError{
			Phase:    phase,
			What:     "checksum",
			Expected: expected,
			Actual:   actual,
		}
	}

	return nil
}

func (d *Driver) randomRangeReads() (Measurement, int, error) {
	var scanned int
	m, err := timed(func() error {
		tx, err := d.engine.BeginRead()
		if err != nil {
			return errors.Wrap(err, "error beginning a read transaction")
		}
		defer tx.Close()

		reader := tx.Reader()
		stream := workload.NewGenerator(d.config.Workload)

		var sum uint64
		for i := 0; i < d.config.Elements; i++ {
			key := stream.NextKey()

			n, s, err := d.scan(reader, key)
			if err != nil {
				return err
			}
			scanned += n
			sum += s
		}

		if scanned == 0 {
			return &VerificationError{
				Phase:    PhaseRandomRangeReads,
				What:     "scanned entries",
				Expected: uint64(d.config.Elements),
				Actual:   0,
			}
		}

		if d.config.Workload.ValueSize > 0 && sum == 0 {
			return &VerificationError{
				Phase:    PhaseRandomRangeReads,
				What:     "value sum",
				Expected: 1,
				Actual:   0,
			}
		}

		return nil
	})
	return m, scanned, err
}

// scan advances a cursor opened at key by at most RangeScanLength steps. The
// first key returned must be the one the cursor was opened at, since every
// scanned key was inserted.
func (d *Driver) scan(reader kv.Reader, key []byte) (int, uint64, error) {
	iter, err := reader.RangeFrom(key)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error calling range from")
	}
	defer iter.Close()

	var n int
	var sum uint64
	for n < d.config.RangeScanLength && iter.Next() {
		if n == 0 && !bytes.Equal(iter.Key(), key) {
			return 0, 0, &VerificationError{
				Phase:       PhaseRandomRangeReads,
				What:        "first scanned key",
				ExpectedKey: key,
				ActualKey:   append([]byte{}, iter.Key()...),
			}
		}
		sum += checksum(iter.Value())
		n++
	}

	if err := iter.Err(); err != nil {
		return 0, 0, errors.Wrap(err, "iterator error")
	}

	return n, sum, nil
}

// removals removes keys from the start of the stream. A failed removal
// doesn't stop the phase, its key is expected to remain stored.
func (d *Driver) removals() (Measurement, int, error) {
	var removed, failed uint64
	m, err := timed(func() error {
		tx, err := d.engine.BeginWrite()
		if err != nil {
			return errors.Wrap(err, "error beginning a write transaction")
		}

		inserter := tx.Inserter()
		stream := workload.NewGenerator(d.config.Workload)
		for i := 0; i < d.config.Deletes; i++ {
			ok, err := inserter.Remove(stream.NextKey())
			if err != nil {
				failed++
				continue
			}
			if ok {
				removed++
			}
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "error committing")
		}
		return nil
	})
	if err != nil {
		return m, 0, err
	}

	if missing := uint64(d.config.Deletes) - removed - failed; missing > 0 || failed > 0 {
		d.logger.Warn("some keys were not removed",
			"phase", PhaseRemovals,
			"removed", removed,
			"missing", missing,
			"failed", failed,
		)
	}

	n, err := d.len()
	if err != nil {
		return m, 0, errors.Wrap(err, "error checking the length")
	}

	if expected := d.config.ExpectedLen() - uint64(d.config.Deletes) + failed; n != expected {
		return m, 0, &VerificationError{
			Phase:    PhaseRemovals,
			What:     "length after removals",
			Expected: expected,
			Actual:   n,
		}
	}

	return m, d.config.Deletes, nil
}

func (d *Driver) compaction() (Measurement, int, error) {
	compactor, ok := d.engine.(kv.Compactor)
	if !ok {
		return NewNotApplicable(), 0, nil
	}

	m, err := timed(compactor.Compact)
	return m, 0, err
}

func (d *Driver) size() (Measurement, int, error) {
	if d.directory == "" {
		return NewNotApplicable(), 0, nil
	}

	if syncer, ok := d.engine.(kv.Syncer); ok {
		if err := syncer.Sync(); err != nil {
			return Measurement{}, 0, errors.Wrap(err, "error calling sync")
		}
	}

	size, err := kv.DirSize(d.directory)
	if err != nil {
		return Measurement{}, 0, errors.Wrap(err, "error calculating the size")
	}

	return NewSize(size), 0, nil
}

func checksum(value []byte) uint64 {
	if len(value) == 0 {
		return 0
	}
	return uint64(value[0])
}
