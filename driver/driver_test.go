package driver_test

import (
	"context"
	"encoding/hex"
	"sync/atomic"
	"testing"

	"github.com/boreq/errors"
	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/driver"
	"github.com/boreq/kv_benchmark/fixtures"
	"github.com/boreq/kv_benchmark/workload"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	for _, definition := range kv.Engines() {
		t.Run(definition.Name, func(t *testing.T) {
			engine, dir := openEngine(t, definition)

			config := testConfig()
			d, err := driver.New(engine, config, driver.WithName(definition.Name), driver.WithDirectory(dir))
			require.NoError(t, err)

			result, err := d.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, definition.Name, result.Engine)

			var phases []string
			for _, entry := range result.Entries {
				phases = append(phases, entry.Phase)
			}

			require.Equal(t,
				[]string{
					driver.PhaseBulkLoad,
					driver.PhaseIndividualWrites,
					driver.PhaseBatchWrites,
					driver.PhaseLen,
					driver.PhaseRandomReads,
					driver.PhaseRandomRangeReads,
					"random_reads_4_threads",
					"random_reads_8_threads",
					driver.PhaseRemovals,
					driver.PhaseCompaction,
					driver.PhaseSize,
				},
				phases,
			)

			for _, entry := range result.Entries[:len(result.Entries)-2] {
				require.Equal(t, driver.Duration, entry.Measurement.Kind, entry.Phase)
			}

			size, ok := result.Get(driver.PhaseSize)
			require.True(t, ok)
			require.Equal(t, driver.SizeInBytes, size.Kind)
			require.NotZero(t, size.Bytes)

			bulkLoad := result.Entries[0]
			require.Equal(t, config.Elements, bulkLoad.Operations)

			tx, err := engine.BeginRead()
			require.NoError(t, err)
			defer tx.Close()

			n, err := tx.Reader().Len()
			require.NoError(t, err)
			require.Equal(t, config.ExpectedLen()-uint64(config.Deletes), n)
		})
	}
}

func TestRunReportsSizeAsNotApplicableWithoutDirectory(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	d, err := driver.New(engine, testConfig())
	require.NoError(t, err)

	result, err := d.Run(context.Background())
	require.NoError(t, err)

	size, ok := result.Get(driver.PhaseSize)
	require.True(t, ok)
	require.Equal(t, driver.NotApplicable, size.Kind)

	compaction, ok := result.Get(driver.PhaseCompaction)
	require.True(t, ok)
	require.Equal(t, driver.NotApplicable, compaction.Kind, "bbolt doesn't compact")
}

func TestRunDetectsCorruptedValues(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	d, err := driver.New(corruptingEngine{Engine: engine}, testConfig())
	require.NoError(t, err)

	result, err := d.Run(context.Background())

	var verificationErr *driver.VerificationError
	require.ErrorAs(t, err, &verificationErr)
	require.Equal(t, driver.PhaseRandomReads, verificationErr.Phase)
	require.Equal(t, "checksum", verificationErr.What)
	require.NotEqual(t, verificationErr.Expected, verificationErr.Actual)

	_, ok := result.Get(driver.PhaseLen)
	require.True(t, ok, "phases before the failure are reported")

	_, ok = result.Get(driver.PhaseRandomReads)
	require.False(t, ok)
}

func TestRunDetectsCorruptedValuesInConcurrentReads(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	config := testConfig()
	config.ReadThreads = []int{4}

	// len, random_reads and random_range_reads open one read transaction
	// each, every following one belongs to the concurrent phase.
	corrupting := &lateCorruptingEngine{Engine: engine, from: 4}

	d, err := driver.New(corrupting, config)
	require.NoError(t, err)

	result, err := d.Run(context.Background())

	var verificationErr *driver.VerificationError
	require.ErrorAs(t, err, &verificationErr)
	require.Equal(t, "random_reads_4_threads", verificationErr.Phase)
	require.Equal(t, driver.PhaseConcurrentReads(4), verificationErr.Phase)
	require.Equal(t, "checksum", verificationErr.What)
	require.ErrorContains(t, err, "phase random_reads_4_threads failed")

	_, ok := result.Get(driver.PhaseRandomRangeReads)
	require.True(t, ok)

	_, ok = result.Get(driver.PhaseConcurrentReads(4))
	require.False(t, ok)
}

func TestRunDetectsMisplacedRangeScans(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	config := testConfig()
	d, err := driver.New(skippingEngine{Engine: engine}, config)
	require.NoError(t, err)

	_, err = d.Run(context.Background())

	var verificationErr *driver.VerificationError
	require.ErrorAs(t, err, &verificationErr)
	require.Equal(t, driver.PhaseRandomRangeReads, verificationErr.Phase)
	require.Equal(t, "first scanned key", verificationErr.What)

	firstKey := workload.NewGenerator(config.Workload).NextKey()
	require.Equal(t, firstKey, verificationErr.ExpectedKey)
	require.NotEmpty(t, verificationErr.ActualKey)
	require.NotEqual(t, firstKey, verificationErr.ActualKey)

	require.ErrorContains(t, err, hex.EncodeToString(firstKey))
	require.ErrorContains(t, err, hex.EncodeToString(verificationErr.ActualKey))
}

func TestRunFailsWhenCommitFails(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	d, err := driver.New(failingCommitEngine{Engine: engine}, testConfig())
	require.NoError(t, err)

	result, err := d.Run(context.Background())
	require.ErrorIs(t, err, errCommitFailed)
	require.ErrorContains(t, err, "phase bulk_load failed")
	require.Empty(t, result.Entries)

	tx, err := engine.BeginRead()
	require.NoError(t, err)
	defer tx.Close()

	n, err := tx.Reader().Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRunContinuesWhenRemoveFails(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	config := testConfig()
	d, err := driver.New(&failingRemoveEngine{Engine: engine}, config)
	require.NoError(t, err)

	result, err := d.Run(context.Background())
	require.NoError(t, err)

	removals, ok := result.Get(driver.PhaseRemovals)
	require.True(t, ok)
	require.Equal(t, driver.Duration, removals.Kind)

	_, ok = result.Get(driver.PhaseSize)
	require.True(t, ok, "later phases run")

	tx, err := engine.BeginRead()
	require.NoError(t, err)
	defer tx.Close()

	n, err := tx.Reader().Len()
	require.NoError(t, err)
	require.Equal(t, config.ExpectedLen()-uint64(config.Deletes)+1, n, "the key which failed to be removed stays")
}

func TestVerificationError(t *testing.T) {
	err := &driver.VerificationError{Phase: "len", What: "length", Expected: 10, Actual: 12}
	require.EqualError(t, err, "len: length mismatch: expected 10, got 12")

	err = &driver.VerificationError{
		Phase:       "random_range_reads",
		What:        "first scanned key",
		ExpectedKey: []byte{0x01, 0xab},
		ActualKey:   []byte{0x01, 0xac},
	}
	require.EqualError(t, err, "random_range_reads: first scanned key mismatch: expected 01ab, got 01ac")
}

func TestRunDetectsWrongLength(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "leveldb"))

	config := testConfig()
	writeElements(t, engine, workload.Config{KeySize: 8, ValueSize: 1, Seed: 100}, 5)

	d, err := driver.New(engine, config)
	require.NoError(t, err)

	_, err = d.Run(context.Background())

	var verificationErr *driver.VerificationError
	require.ErrorAs(t, err, &verificationErr)
	require.Equal(t, driver.PhaseLen, verificationErr.Phase)
	require.Equal(t, config.ExpectedLen(), verificationErr.Expected)
	require.Equal(t, config.ExpectedLen()+5, verificationErr.Actual)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	d, err := driver.New(engine, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, result.Entries)
}

func TestRunStep(t *testing.T) {
	for _, name := range []string{"bbolt", "badger", "pebble", "leveldb"} {
		t.Run(name, func(t *testing.T) {
			engine, dir := openEngine(t, mustFindEngine(t, name))

			profile := workload.Profile{
				Name:         "test",
				PreloadCount: 4000,
				PreloadBatch: 100,
				OpCount:      400,
				OpBatch:      10,
				IterPerScan:  5,
			}

			d, err := driver.New(engine, testConfig(), driver.WithDirectory(dir))
			require.NoError(t, err)

			result, err := d.RunStep(context.Background(), profile, 4)
			require.NoError(t, err)
			require.Len(t, result.Entries, 3)

			preload := result.Entries[0]
			require.Equal(t, driver.PhasePreload, preload.Phase)
			require.Equal(t, 4000, preload.Operations)

			scan := result.Entries[1]
			require.Equal(t, driver.PhaseScan, scan.Phase)
			require.Positive(t, scan.Operations)
			require.LessOrEqual(t, scan.Operations, 400*5)

			require.Equal(t, driver.PhaseSize, result.Entries[2].Phase)

			tx, err := engine.BeginRead()
			require.NoError(t, err)
			defer tx.Close()

			n, err := tx.Reader().Len()
			require.NoError(t, err)
			require.Equal(t, uint64(4000), n)
		})
	}
}

func TestRunStepRejectsInvalidArguments(t *testing.T) {
	engine, _ := openEngine(t, mustFindEngine(t, "bbolt"))

	d, err := driver.New(engine, testConfig())
	require.NoError(t, err)

	_, err = d.RunStep(context.Background(), workload.Tiny, 0)
	require.Error(t, err)

	_, err = d.RunStep(context.Background(), workload.Profile{PreloadCount: 10}, 1)
	require.Error(t, err)
}

func TestConfigFromProfile(t *testing.T) {
	config := driver.ConfigFromProfile(workload.Small, workload.DefaultConfig())

	require.Equal(t, workload.DefaultConfig(), config.Workload)
	require.Equal(t, 1_000_000, config.Elements)
	require.Equal(t, 100, config.IndividualWrites)
	require.Equal(t, 100, config.BatchWrites)
	require.Equal(t, 1_000, config.BatchSize)
	require.Equal(t, 10, config.RangeScanLength)
	require.Equal(t, 10_000, config.Deletes)
	require.Equal(t, []int{4, 8, 16, 32}, config.ReadThreads)
	require.NoError(t, config.Validate())

	tiny := driver.ConfigFromProfile(workload.Tiny, workload.DefaultConfig())
	require.Equal(t, 10_000, tiny.Deletes)
	require.Equal(t, uint64(10_000+100+1_000), tiny.ExpectedLen())
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		Name   string
		Modify func(c *driver.Config)
	}{
		{
			Name:   "no_elements",
			Modify: func(c *driver.Config) { c.Elements = 0 },
		},
		{
			Name:   "negative_writes",
			Modify: func(c *driver.Config) { c.IndividualWrites = -1 },
		},
		{
			Name:   "batch_writes_without_batch_size",
			Modify: func(c *driver.Config) { c.BatchSize = 0 },
		},
		{
			Name:   "no_range_scan",
			Modify: func(c *driver.Config) { c.RangeScanLength = 0 },
		},
		{
			Name:   "too_many_deletes",
			Modify: func(c *driver.Config) { c.Deletes = c.Elements + 1 },
		},
		{
			Name:   "zero_threads",
			Modify: func(c *driver.Config) { c.ReadThreads = []int{4, 0} },
		},
		{
			Name:   "invalid_workload",
			Modify: func(c *driver.Config) { c.Workload.KeySize = 0 },
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			config := testConfig()
			testCase.Modify(&config)
			require.Error(t, config.Validate())

			_, err := driver.New(nil, config)
			require.Error(t, err)
		})
	}
}

func testConfig() driver.Config {
	return driver.Config{
		Workload:         workload.Config{KeySize: 48, ValueSize: 2, Seed: 3},
		Elements:         1000,
		IndividualWrites: 10,
		BatchWrites:      2,
		BatchSize:        50,
		RangeScanLength:  10,
		Deletes:          100,
		ReadThreads:      []int{4, 8},
	}
}

func openEngine(t *testing.T, definition kv.EngineDefinition) (kv.Engine, string) {
	dir := fixtures.Directory(t, "")

	engine, err := definition.Constructor(dir, kv.OpenConfig{NoSync: true, CacheSize: 8 << 20})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, engine.Close())
	})

	return engine, dir
}

func mustFindEngine(t *testing.T, name string) kv.EngineDefinition {
	definition, err := kv.FindEngine(name)
	require.NoError(t, err)
	return definition
}

func writeElements(t *testing.T, engine kv.Engine, config workload.Config, n int) {
	tx, err := engine.BeginWrite()
	require.NoError(t, err)

	g := workload.NewGenerator(config)
	for i := 0; i < n; i++ {
		key, value := g.Next()
		require.NoError(t, tx.Inserter().Insert(key, value))
	}

	require.NoError(t, tx.Commit())
}

// corruptingEngine flips the first byte of every value returned by Get.
type corruptingEngine struct {
	kv.Engine
}

func (e corruptingEngine) BeginRead() (kv.ReadTransaction, error) {
	tx, err := e.Engine.BeginRead()
	if err != nil {
		return nil, err
	}
	return corruptingTx{ReadTransaction: tx}, nil
}

type corruptingTx struct {
	kv.ReadTransaction
}

func (t corruptingTx) Reader() kv.Reader {
	return corruptingReader{Reader: t.ReadTransaction.Reader()}
}

type corruptingReader struct {
	kv.Reader
}

func (r corruptingReader) Get(key []byte) ([]byte, bool, error) {
	value, ok, err := r.Reader.Get(key)
	if err != nil || !ok || len(value) == 0 {
		return value, ok, err
	}

	corrupted := append([]byte(nil), value...)
	corrupted[0]++
	return corrupted, true, nil
}

// lateCorruptingEngine corrupts values returned by read transactions starting
// with the read transaction numbered from.
type lateCorruptingEngine struct {
	kv.Engine
	from  int64
	reads atomic.Int64
}

func (e *lateCorruptingEngine) BeginRead() (kv.ReadTransaction, error) {
	if e.reads.Add(1) < e.from {
		return e.Engine.BeginRead()
	}
	return corruptingEngine{Engine: e.Engine}.BeginRead()
}

// skippingEngine opens cursors past the requested key.
type skippingEngine struct {
	kv.Engine
}

func (e skippingEngine) BeginRead() (kv.ReadTransaction, error) {
	tx, err := e.Engine.BeginRead()
	if err != nil {
		return nil, err
	}
	return skippingTx{ReadTransaction: tx}, nil
}

type skippingTx struct {
	kv.ReadTransaction
}

func (t skippingTx) Reader() kv.Reader {
	return skippingReader{Reader: t.ReadTransaction.Reader()}
}

type skippingReader struct {
	kv.Reader
}

func (r skippingReader) RangeFrom(key []byte) (kv.Iterator, error) {
	past := append(append([]byte(nil), key...), 0xff)
	return r.Reader.RangeFrom(past)
}

var errCommitFailed = errors.New("commit failed")

// failingCommitEngine rolls back every write transaction instead of
// committing it.
type failingCommitEngine struct {
	kv.Engine
}

func (e failingCommitEngine) BeginWrite() (kv.WriteTransaction, error) {
	tx, err := e.Engine.BeginWrite()
	if err != nil {
		return nil, err
	}
	return failingCommitTx{WriteTransaction: tx}, nil
}

type failingCommitTx struct {
	kv.WriteTransaction
}

func (t failingCommitTx) Commit() error {
	if err := t.WriteTransaction.Rollback(); err != nil {
		return err
	}
	return errCommitFailed
}

// failingRemoveEngine fails the first removal without touching the key.
type failingRemoveEngine struct {
	kv.Engine
	removes atomic.Int64
}

func (e *failingRemoveEngine) BeginWrite() (kv.WriteTransaction, error) {
	tx, err := e.Engine.BeginWrite()
	if err != nil {
		return nil, err
	}
	return failingRemoveTx{WriteTransaction: tx, engine: e}, nil
}

type failingRemoveTx struct {
	kv.WriteTransaction
	engine *failingRemoveEngine
}

func (t failingRemoveTx) Inserter() kv.Inserter {
	return failingRemoveInserter{Inserter: t.WriteTransaction.Inserter(), engine: t.engine}
}

type failingRemoveInserter struct {
	kv.Inserter
	engine *failingRemoveEngine
}

func (i failingRemoveInserter) Remove(key []byte) (bool, error) {
	if i.engine.removes.Add(1) == 1 {
		return false, errors.New("remove failed")
	}
	return i.Inserter.Remove(key)
}
