package mgs

import (
	"math"

	"github.com/splatsdotcom/mgs-go/internal/mat"
)

// Pack quantizes fg into a PackedGaussians: a first pass derives the
// DC-color and SH normalization ranges, a second pass emits the packed
// rows against those ranges (§4.A).
//
// Pack fails fast with ErrInvalidArguments on a malformed fg (shDegree > 3,
// N == 0, mismatched per-Gaussian array lengths) — these are caller bugs,
// per §7's propagation policy.
func Pack(fg FloatGaussians) (*PackedGaussians, *Error) {
	if err := fg.validate(); err != nil {
		return nil, err
	}

	stride := shCoeffCount(fg.ShDegree)
	nonDC := stride - 1

	colorMin, colorMax := firstSample3(fg.SH, stride, 0)
	for i := 0; i < fg.N; i++ {
		c := fg.SH[i*stride]
		colorMin, colorMax = expandRange3(colorMin, colorMax, c)
	}

	var shMin, shMax float32
	if nonDC > 0 {
		shMin, shMax = firstSample3(fg.SH, stride, 1)
		for i := 0; i < fg.N; i++ {
			for k := 1; k < stride; k++ {
				shMin, shMax = expandRange3(shMin, shMax, fg.SH[i*stride+k])
			}
		}
	}

	Logger().Debug("pack: derived ranges",
		"n", fg.N, "shDegree", fg.ShDegree,
		"colorMin", colorMin, "colorMax", colorMax,
		"shMin", shMin, "shMax", shMax)
	if colorMin == colorMax || (nonDC > 0 && shMin == shMax) {
		Logger().Warn("pack: degenerate quantization range",
			"colorMin", colorMin, "colorMax", colorMax,
			"shMin", shMin, "shMax", shMax)
	}

	pg := &PackedGaussians{
		N:          fg.N,
		ShDegree:   fg.ShDegree,
		Dynamic:    fg.Dynamic,
		ColorMin:   colorMin,
		ColorMax:   colorMax,
		ShMin:      shMin,
		ShMax:      shMax,
		Means:      make([]mat.Vec4, fg.N),
		Covariance: make([][6]float32, fg.N),
		Opacity:    make([]uint8, fg.N),
		Color:      make([][3]uint16, fg.N),
	}
	if nonDC > 0 {
		pg.SH = make([][3]uint8, fg.N*nonDC)
	}
	if fg.Dynamic {
		pg.Velocity = make([]mat.Vec4, fg.N)
	}

	for i := 0; i < fg.N; i++ {
		tMean := float32(0.5)
		if fg.Dynamic {
			tMean = fg.TMeans[i]
		}
		pg.Means[i] = mat.Vec4{X: fg.Means[i].X, Y: fg.Means[i].Y, Z: fg.Means[i].Z, W: tMean}
		pg.Covariance[i] = mat.Covariance(fg.Scales[i], fg.Rotations[i])
		pg.Opacity[i] = quantizeUnit(fg.Opacities[i])

		dc := fg.SH[i*stride]
		pg.Color[i] = [3]uint16{
			quantizeChannel16(dc.X, colorMin, colorMax),
			quantizeChannel16(dc.Y, colorMin, colorMax),
			quantizeChannel16(dc.Z, colorMin, colorMax),
		}

		for k := 0; k < nonDC; k++ {
			c := fg.SH[i*stride+1+k]
			pg.SH[i*nonDC+k] = [3]uint8{
				quantizeChannel8(c.X, shMin, shMax),
				quantizeChannel8(c.Y, shMin, shMax),
				quantizeChannel8(c.Z, shMin, shMax),
			}
		}

		if fg.Dynamic {
			v := fg.Velocities[i]
			pg.Velocity[i] = mat.Vec4{X: v.X, Y: v.Y, Z: v.Z, W: fg.TStdevs[i]}
		}
	}

	return pg, nil
}

// Unpack dequantizes pg back into a FloatGaussians, lossily: mean, DC and
// non-DC color, opacity, and (if dynamic) velocity/tMean/tStdev are
// recovered within the per-channel quantization step; scale and rotation
// are not recoverable from the packed 6-float covariance alone (extracting
// them would require an eigendecomposition that still can't separate a
// uniform scale from a compensating rotation) so Unpack returns a scale of
// zero and an identity rotation, documented here rather than silently
// wrong.
func Unpack(pg PackedGaussians) (*FloatGaussians, *Error) {
	if err := pg.validate(); err != nil {
		return nil, err
	}

	stride := shCoeffCount(pg.ShDegree)
	nonDC := stride - 1

	fg := &FloatGaussians{
		N:         pg.N,
		ShDegree:  pg.ShDegree,
		Dynamic:   pg.Dynamic,
		Means:     make([]mat.Vec3, pg.N),
		Scales:    make([]mat.Vec3, pg.N),
		Rotations: make([]mat.Quat, pg.N),
		Opacities: make([]float32, pg.N),
		SH:        make([]mat.Vec3, pg.N*stride),
	}
	if pg.Dynamic {
		fg.Velocities = make([]mat.Vec3, pg.N)
		fg.TMeans = make([]float32, pg.N)
		fg.TStdevs = make([]float32, pg.N)
	}

	for i := 0; i < pg.N; i++ {
		m := pg.Means[i]
		fg.Means[i] = mat.Vec3{X: m.X, Y: m.Y, Z: m.Z}
		fg.Rotations[i] = mat.Quat{W: 1} // identity; see doc comment.
		fg.Opacities[i] = float32(pg.Opacity[i]) / 255

		c := pg.Color[i]
		fg.SH[i*stride] = mat.Vec3{
			X: dequantizeChannel16(c[0], pg.ColorMin, pg.ColorMax),
			Y: dequantizeChannel16(c[1], pg.ColorMin, pg.ColorMax),
			Z: dequantizeChannel16(c[2], pg.ColorMin, pg.ColorMax),
		}
		for k := 0; k < nonDC; k++ {
			s := pg.SH[i*nonDC+k]
			fg.SH[i*stride+1+k] = mat.Vec3{
				X: dequantizeChannel8(s[0], pg.ShMin, pg.ShMax),
				Y: dequantizeChannel8(s[1], pg.ShMin, pg.ShMax),
				Z: dequantizeChannel8(s[2], pg.ShMin, pg.ShMax),
			}
		}

		if pg.Dynamic {
			v := pg.Velocity[i]
			fg.Velocities[i] = mat.Vec3{X: v.X, Y: v.Y, Z: v.Z}
			fg.TMeans[i] = m.W
			fg.TStdevs[i] = v.W
		}
	}

	return fg, nil
}

func firstSample3(sh []mat.Vec3, stride, offset int) (min, max float32) {
	if len(sh) < offset+1 {
		return 0, 0
	}
	v := sh[offset]
	lo, hi := v.X, v.X
	if v.Y < lo {
		lo = v.Y
	}
	if v.Y > hi {
		hi = v.Y
	}
	if v.Z < lo {
		lo = v.Z
	}
	if v.Z > hi {
		hi = v.Z
	}
	return lo, hi
}

func expandRange3(min, max float32, v mat.Vec3) (float32, float32) {
	min, max = expandRangeScalar(min, max, v.X)
	min, max = expandRangeScalar(min, max, v.Y)
	min, max = expandRangeScalar(min, max, v.Z)
	return min, max
}

func expandRangeScalar(min, max, v float32) (float32, float32) {
	if v < min {
		min = v
	}
	if v > max {
		max = v
	}
	return min, max
}

// quantizeUnit rounds a [0,1] opacity to uint8, clamped to [0,255] so
// slightly out-of-range inputs still produce an in-bounds output.
func quantizeUnit(v float32) uint8 {
	v = mat.Clamp01(v)
	r := math.Round(float64(v) * 255)
	if r < 0 {
		r = 0
	}
	if r > 255 {
		r = 255
	}
	return uint8(r)
}

// quantizeChannel16 normalizes v against [lo,hi] and rounds to uint16. A
// zero-width range (lo == hi) would otherwise divide by zero; the spec
// leaves that case implementation-defined as long as the output stays
// in-bounds, so this implementation returns 0.
func quantizeChannel16(v, lo, hi float32) uint16 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo)
	r := math.Round(float64(t) * 65535)
	return uint16(clampF(r, 0, 65535))
}

func quantizeChannel8(v, lo, hi float32) uint8 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo)
	r := math.Round(float64(t) * 255)
	return uint8(clampF(r, 0, 255))
}

func dequantizeChannel16(q uint16, lo, hi float32) float32 {
	if hi <= lo {
		return lo
	}
	return lo + float32(q)/65535*(hi-lo)
}

func dequantizeChannel8(q uint8, lo, hi float32) float32 {
	if hi <= lo {
		return lo
	}
	return lo + float32(q)/255*(hi-lo)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
