package workload

import (
	"fmt"
	"strings"
)

// Profile is a named operation size bundle. Profiles are plain values and are
// never modified after ParseProfile returns them.
type Profile struct {
	Name         string
	PreloadCount int
	PreloadBatch int
	OpCount      int
	OpBatch      int
	IterPerScan  int
}

var (
	Tiny = Profile{
		Name:         "tiny",
		PreloadCount: 10_000,
		PreloadBatch: 1_000,
		OpCount:      1_000,
		OpBatch:      100,
		IterPerScan:  100,
	}

	Small = Profile{
		Name:         "small",
		PreloadCount: 1_000_000,
		PreloadBatch: 1_000,
		OpCount:      100_000,
		OpBatch:      100,
		IterPerScan:  1_000,
	}

	Medium = Profile{
		Name:         "medium",
		PreloadCount: 10_000_000,
		PreloadBatch: 1_000,
		OpCount:      100_000,
		OpBatch:      100,
		IterPerScan:  1_000,
	}

	Big = Profile{
		Name:         "big",
		PreloadCount: 1_000_000_000,
		PreloadBatch: 1_000,
		OpCount:      10_000_000,
		OpBatch:      100,
		IterPerScan:  1_000,
	}
)

// ParseProfile accepts either the one letter tag or the full profile name.
func ParseProfile(tag string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "t", "tiny":
		return Tiny, nil
	case "s", "small":
		return Small, nil
	case "m", "medium":
		return Medium, nil
	case "b", "big":
		return Big, nil
	default:
		return Profile{}, fmt.Errorf("profile must be one of 't', 's', 'm' or 'b', got '%s'", tag)
	}
}

func (p Profile) String() string {
	return fmt.Sprintf(
		"%s (preload=%d preload_per_tx=%d ops=%d ops_per_tx=%d iter_per_scan=%d)",
		p.Name, p.PreloadCount, p.PreloadBatch, p.OpCount, p.OpBatch, p.IterPerScan,
	)
}
