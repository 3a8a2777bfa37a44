package simd

import (
	"os"
	"runtime"
	"strings"
)

// ISA represents a SIMD instruction set architecture.
type ISA uint8

const (
	// Generic is the portable kernel set.
	Generic ISA = iota
	// NEON is ARM64 Advanced SIMD.
	NEON
	// SVE2 is ARM64 scalable vectors.
	SVE2
	// AVX2 is x86-64 AVX2 with FMA.
	AVX2
	// AVX512 is x86-64 AVX-512 F and BW.
	AVX512
)

// OverrideEnv names the environment variable that pins the kernel set.
const OverrideEnv = "SHARDANN_SIMD"

func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case NEON:
		return "neon"
	case SVE2:
		return "sve2"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// ParseISA parses a case-insensitive ISA name.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return Generic, true
	case "neon":
		return NEON, true
	case "sve2":
		return SVE2, true
	case "avx2":
		return AVX2, true
	case "avx512":
		return AVX512, true
	default:
		return Generic, false
	}
}

// Set once by the platform init; read-only afterwards.
var (
	activeISA   ISA
	hasOverride bool

	hasASIMD    bool
	hasSVE2     bool
	hasAVX2     bool
	hasAVX512F  bool
	hasAVX512BW bool
)

// initCapabilities runs after the platform init has filled the feature flags.
func initCapabilities() {
	activeISA = selectBestISA()
	if override := os.Getenv(OverrideEnv); override != "" {
		if isa, ok := ParseISA(override); ok && isISAAvailable(isa) {
			hasOverride = true
			activeISA = isa
		}
	}
	selectKernels(activeISA)
}

func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return hasASIMD
	case SVE2:
		return hasSVE2
	case AVX2:
		return hasAVX2
	case AVX512:
		return hasAVX512F && hasAVX512BW
	default:
		return false
	}
}

func selectBestISA() ISA {
	switch runtime.GOARCH {
	case "arm64":
		// Apple cores run NEON faster than their SVE2.
		if hasSVE2 && runtime.GOOS != "darwin" {
			return SVE2
		}
		if hasASIMD {
			return NEON
		}
	case "amd64":
		if hasAVX512F && hasAVX512BW {
			return AVX512
		}
		if hasAVX2 {
			return AVX2
		}
	}
	return Generic
}

// ActiveISA returns the instruction set the kernels were selected for.
func ActiveISA() ISA { return activeISA }

// IsOverridden reports whether SHARDANN_SIMD pinned the kernel set.
func IsOverridden() bool { return hasOverride }
