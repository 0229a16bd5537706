package kv_benchmark_test

import (
	"context"
	"os"
	"testing"

	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/driver"
	"github.com/boreq/kv_benchmark/fixtures"
	"github.com/boreq/kv_benchmark/workload"
)

// BenchmarkPhases runs the tiny profile against every engine listed in
// ENABLE_ENGINES on every storage listed in STORAGE_FAST and STORAGE_SLOW,
// reporting each phase as a separate metric.
func BenchmarkPhases(b *testing.B) {
	definitions := getEngines(b)
	storageSystems := getStorageSystems(b)
	config := driver.ConfigFromProfile(workload.Tiny, workload.DefaultConfig())

	for _, definition := range definitions {
		b.Run(definition.Name, func(b *testing.B) {
			for _, storageSystem := range storageSystems {
				b.Run(storageSystem.Name, func(b *testing.B) {
					for i := 0; i < b.N; i++ {
						b.StopTimer()

						dir := fixtures.Directory(b, storageSystem.Path)

						engine, err := definition.Constructor(dir, kv.OpenConfig{})
						if err != nil {
							b.Fatal(err)
						}

						closed := false
						b.Cleanup(func() {
							if !closed {
								if err := engine.Close(); err != nil {
									b.Error(err)
								}
							}
						})

						d, err := driver.New(engine, config, driver.WithName(definition.Name), driver.WithDirectory(dir))
						if err != nil {
							b.Fatal(err)
						}

						b.StartTimer()

						result, err := d.Run(context.Background())
						if err != nil {
							b.Fatal(err)
						}

						b.StopTimer()

						closed = true
						if err := engine.Close(); err != nil {
							b.Fatal(err)
						}

						for _, entry := range result.Entries {
							switch entry.Measurement.Kind {
							case driver.Duration:
								b.ReportMetric(float64(entry.Measurement.Duration.Nanoseconds()), entry.Phase+"-ns")
							case driver.SizeInBytes:
								b.ReportMetric(float64(entry.Measurement.Bytes), entry.Phase+"-bytes")
							}
						}
					}
				})
			}
		})
	}
}

func getEngines(tb testing.TB) []kv.EngineDefinition {
	names := os.Getenv("ENABLE_ENGINES")
	if names == "" {
		tb.Log("ENABLE_ENGINES is not set")
		return nil
	}

	definitions, err := kv.FindEngines(names)
	if err != nil {
		tb.Fatal(err)
	}
	return definitions
}

type StorageSystem struct {
	Name string
	Path string
}

func getStorageSystems(tb testing.TB) []StorageSystem {
	var v []StorageSystem

	fast := os.Getenv("STORAGE_FAST")
	if fast == "" {
		tb.Log("STORAGE_FAST not set")
	} else {
		v = append(v,
			StorageSystem{
				Name: "fast_storage",
				Path: fast,
			},
		)
	}

	slow := os.Getenv("STORAGE_SLOW")
	if slow == "" {
		tb.Log("STORAGE_SLOW not set")
	} else {
		v = append(v,
			StorageSystem{
				Name: "slow_storage",
				Path: slow,
			},
		)
	}

	return v
}
