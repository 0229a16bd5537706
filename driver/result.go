package driver

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

type Kind int

const (
	NotApplicable Kind = iota
	Duration
	SizeInBytes
)

// Measurement is the outcome of one phase.
type Measurement struct {
	Kind     Kind
	Duration time.Duration
	Bytes    uint64
}

func NewDuration(d time.Duration) Measurement {
	return Measurement{Kind: Duration, Duration: d}
}

func NewSize(bytes uint64) Measurement {
	return Measurement{Kind: SizeInBytes, Bytes: bytes}
}

func NewNotApplicable() Measurement {
	return Measurement{Kind: NotApplicable}
}

// Less reports whether m is a better result than o. Results of a different
// kind are never better.
func (m Measurement) Less(o Measurement) bool {
	if m.Kind != o.Kind {
		return false
	}

	switch m.Kind {
	case Duration:
		return m.Duration < o.Duration
	case SizeInBytes:
		return m.Bytes < o.Bytes
	default:
		return false
	}
}

func (m Measurement) String() string {
	switch m.Kind {
	case Duration:
		return m.Duration.Round(10 * time.Microsecond).String()
	case SizeInBytes:
		return humanize.IBytes(m.Bytes)
	default:
		return "N/A"
	}
}

type Entry struct {
	Phase       string
	Measurement Measurement

	// Operations is the number of operations performed by the phase, zero if
	// the phase doesn't count them.
	Operations int
}

// Result lists entries in the order the phases were executed.
type Result struct {
	Engine  string
	Entries []Entry
}

func (r Result) Get(phase string) (Measurement, bool) {
	for _, entry := range r.Entries {
		if entry.Phase == phase {
			return entry.Measurement, true
		}
	}
	return Measurement{}, false
}

func (r *Result) add(phase string, measurement Measurement, operations int) {
	r.Entries = append(r.Entries, Entry{
		Phase:       phase,
		Measurement: measurement,
		Operations:  operations,
	})
}

// VerificationError is returned when an engine returned data which doesn't
// match what was written to it. Mismatched keys are reported in ExpectedKey
// and ActualKey, mismatched counts in Expected and Actual.
type VerificationError struct {
	Phase    string
	What     string
	Expected uint64
	Actual   uint64

	ExpectedKey []byte
	ActualKey   []byte
}

func (e *VerificationError) Error() string {
	if e.ExpectedKey != nil {
		return fmt.Sprintf("%s: %s mismatch: expected %x, got %x", e.Phase, e.What, e.ExpectedKey, e.ActualKey)
	}
	return fmt.Sprintf("%s: %s mismatch: expected %d, got %d", e.Phase, e.What, e.Expected, e.Actual)
}
