// Package compression recommends a software deflate level for the
// fallback path based on detected CPU features: a CPU with wide SIMD
// support can afford a higher level before it becomes the throughput
// bottleneck, the same CPU-tier reasoning applied here to level choice
// instead of algorithm choice.
//
// The accelerators do their own level handling internally (ACCEL-A reads
// qat_compression_level directly, ACCEL-B ignores level entirely); this
// package only matters once dispatch has already fallen through to
// internal/softflate, where a CPU that can't shift-and-mask its way
// through a high compression level quickly is better served running at a
// lower one.
package compression

import (
	"fmt"

	"github.com/uuxo/zlib-accel/internal/cpufeatures"
)

// Profile holds the auto-selected software deflate level for the current
// hardware.
type Profile struct {
	// Level is the recommended flate.Writer compression level, 1-9.
	Level int

	// Tier is a human-readable label for the CPU capability level, as
	// reported by cpufeatures.Features.CompressionTier.
	Tier string

	// Reason explains why this level was selected.
	Reason string

	// Features is a reference to the detected CPU features.
	Features *cpufeatures.Features
}

// AutoSelect detects CPU features and returns the recommended software
// deflate profile for the current hardware.
func AutoSelect() *Profile {
	return SelectForFeatures(cpufeatures.Detect())
}

// SelectForFeatures returns a profile based on the given CPU features,
// separated from AutoSelect for testing.
func SelectForFeatures(features *cpufeatures.Features) *Profile {
	tier := features.CompressionTier()

	switch tier {
	case "optimal":
		return &Profile{
			Level: 9,
			Tier:  tier,
			Reason: fmt.Sprintf(
				"BMI2+AVX2 detected, match finding and checksumming run fast enough "+
					"to afford the highest software deflate level. CPU: %s", features.BrandName),
			Features: features,
		}
	case "good":
		return &Profile{
			Level: 6,
			Tier:  tier,
			Reason: fmt.Sprintf(
				"BMI2+SSE4.2 detected, using the default deflate level for a balance of "+
					"ratio and throughput. CPU: %s", features.BrandName),
			Features: features,
		}
	case "baseline":
		return &Profile{
			Level: 6,
			Tier:  tier,
			Reason: fmt.Sprintf(
				"SSE2 only, default deflate level remains a safe choice. CPU: %s", features.BrandName),
			Features: features,
		}
	default: // "minimal"
		return &Profile{
			Level: 4,
			Tier:  tier,
			Reason: fmt.Sprintf(
				"no relevant SIMD extensions detected, lowering the software deflate level "+
					"to keep the fallback path from becoming the bottleneck. Arch: %s", features.Arch),
			Features: features,
		}
	}
}

// String returns a human-readable description of the profile.
func (p *Profile) String() string {
	return fmt.Sprintf("level=%d tier=%s reason=(%s)", p.Level, p.Tier, p.Reason)
}
