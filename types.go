// Package mgs implements the packing, container, combine, and cull/sort
// core of a 3D Gaussian Splatting pipeline: quantizing a raw float Gaussian
// set into a compact GPU-upload-ready representation, reading and writing
// that representation as a ".mgs" binary container, losslessly-in-count
// (though lossy in quantization) combining two packed sets, and computing a
// parallel, view-dependent back-to-front index permutation for alpha
// blending.
//
// See SPEC_FULL.md for the full requirements this package implements and
// DESIGN.md for how each piece is grounded in the retrieval corpus.
package mgs

import (
	"github.com/google/uuid"

	"github.com/splatsdotcom/mgs-go/internal/mat"
)

// MaxSHDegree is the highest spherical-harmonic degree this format
// supports (§3: shDegree ≤ 3).
const MaxSHDegree = 3

// shCoeffCount returns (degree+1)^2, the number of SH coefficients
// (including the DC term) for the given degree.
func shCoeffCount(degree int) int {
	n := degree + 1
	return n * n
}

// FloatGaussians is the producer-side, unquantized Gaussian set (§3).
// Every per-Gaussian slice has length N; SH has length N*shCoeffCount.
type FloatGaussians struct {
	N        int
	ShDegree int
	Dynamic  bool

	Means     []mat.Vec3
	Scales    []mat.Vec3
	Rotations []mat.Quat
	Opacities []float32
	SH        []mat.Vec3 // flat, stride shCoeffCount(ShDegree); index 0 of each group is DC.

	// Velocities, TMeans, TStdevs are populated iff Dynamic.
	Velocities []mat.Vec3
	TMeans     []float32
	TStdevs    []float32
}

// validate checks the shape invariants in §3 and §4.A's fail-fast
// arguments, returning ErrInvalidArguments on the first violation.
func (fg *FloatGaussians) validate() *Error {
	if fg.ShDegree < 0 || fg.ShDegree > MaxSHDegree {
		return newErr(ErrInvalidArguments, "shDegree %d out of range [0,%d]", fg.ShDegree, MaxSHDegree)
	}
	if fg.N <= 0 {
		return newErr(ErrInvalidArguments, "N must be > 0, got %d", fg.N)
	}
	n := fg.N
	if len(fg.Means) != n || len(fg.Scales) != n || len(fg.Rotations) != n || len(fg.Opacities) != n {
		return newErr(ErrInvalidArguments, "per-Gaussian arrays must all have length N=%d", n)
	}
	wantSH := n * shCoeffCount(fg.ShDegree)
	if len(fg.SH) != wantSH {
		return newErr(ErrInvalidArguments, "sh must have length N*(shDegree+1)^2=%d, got %d", wantSH, len(fg.SH))
	}
	if fg.Dynamic {
		if len(fg.Velocities) != n || len(fg.TMeans) != n || len(fg.TStdevs) != n {
			return newErr(ErrInvalidArguments, "dynamic velocity/tMean/tStdev must all have length N=%d", n)
		}
	} else if len(fg.Velocities) != 0 || len(fg.TMeans) != 0 || len(fg.TStdevs) != 0 {
		return newErr(ErrInvalidArguments, "velocity/tMean/tStdev must be empty when not dynamic")
	}
	return nil
}

// PackedGaussians is the consumer-side, quantized Gaussian set (§3),
// GPU-upload-ready. Per-Gaussian arrays are contiguous and typed views
// onto them are returned by GPUBuffers (see gpuview.go's BufferView).
type PackedGaussians struct {
	N        int
	ShDegree int
	Dynamic  bool

	ColorMin, ColorMax float32
	ShMin, ShMax       float32

	Means      []mat.Vec4  // .w = tMean if Dynamic else 0.5
	Covariance [][6]float32
	Opacity    []uint8
	Color      [][3]uint16
	SH         [][3]uint8 // length N*(shCoeffCount-1); empty if ShDegree==0
	Velocity   []mat.Vec4 // .w = tStdev; empty if !Dynamic

	// SceneID is the SPEC_FULL.md extension field: set by Decode when the
	// container carries the trailing SceneID chunk guarded by a header flag
	// bit (see codec.go). Encode writes Metadata.SceneID, not this field,
	// and Combine does not carry it into its result.
	SceneID *uuid.UUID
}

// validateHeader checks the scalar invariants decodable from the container
// header alone — magic/version are checked by the caller before this runs;
// N, shDegree, and the two ranges are checked here, before any per-Gaussian
// array has been allocated. Used by the decoder so a truncated payload is
// still reported against a header that already failed validation, and by
// validate (which also checks array lengths once they exist).
func (pg *PackedGaussians) validateHeader() *Error {
	if pg.ShDegree < 0 || pg.ShDegree > MaxSHDegree {
		return newErr(ErrInvalidInput, "shDegree %d out of range [0,%d]", pg.ShDegree, MaxSHDegree)
	}
	if pg.N <= 0 {
		return newErr(ErrInvalidInput, "N must be > 0, got %d", pg.N)
	}
	if pg.ColorMin > pg.ColorMax {
		return newErr(ErrInvalidInput, "colorMin %g > colorMax %g", pg.ColorMin, pg.ColorMax)
	}
	nonDC := shCoeffCount(pg.ShDegree) - 1
	if nonDC > 0 && pg.ShMin > pg.ShMax {
		return newErr(ErrInvalidInput, "shMin %g > shMax %g", pg.ShMin, pg.ShMax)
	}
	return nil
}

// validate checks the invariants in §3/§4.C's decoder validation list,
// returning ErrInvalidInput on the first violation (these are
// data-dependent checks, not caller-argument checks: they run on every
// PackedGaussians passed to Encode, Combine, Unpack, NewSorter and
// GPUBuffers; Decode runs only validateHeader).
func (pg *PackedGaussians) validate() *Error {
	if err := pg.validateHeader(); err != nil {
		return err
	}
	nonDC := shCoeffCount(pg.ShDegree) - 1
	n := pg.N
	if len(pg.Means) != n || len(pg.Covariance) != n || len(pg.Opacity) != n || len(pg.Color) != n {
		return newErr(ErrInvalidInput, "packed arrays must all have length N=%d", n)
	}
	wantSH := n * nonDC
	if len(pg.SH) != wantSH {
		return newErr(ErrInvalidInput, "sh must have length N*((shDegree+1)^2-1)=%d, got %d", wantSH, len(pg.SH))
	}
	if pg.Dynamic && len(pg.Velocity) != n {
		return newErr(ErrInvalidInput, "velocity must have length N=%d when dynamic", n)
	}
	if !pg.Dynamic && len(pg.Velocity) != 0 {
		return newErr(ErrInvalidInput, "velocity must be empty when not dynamic")
	}
	return nil
}

// Metadata is attached to every container (§3). A negative Duration is a
// warning, not an error.
type Metadata struct {
	Duration float32

	// SceneID is the SPEC_FULL.md supplemented extension field: optional,
	// nil unless the container carries the trailing SceneID chunk.
	SceneID *uuid.UUID
}
