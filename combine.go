package mgs

import "github.com/splatsdotcom/mgs-go/internal/mat"

// Combine concatenates two compatible packed sets (§4.B). Means,
// covariance, and opacity are concatenated verbatim (raw-preserving);
// color and SH are re-normalized against the union of the two inputs'
// ranges, which means combine is lossy in the same sense as Pack even
// though count-preserving fields are not.
//
// Combine fails ErrInvalidInput if a.ShDegree != b.ShDegree: SH degree
// must be homogeneous across a combine.
func Combine(a, b PackedGaussians) (*PackedGaussians, *Error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if a.ShDegree != b.ShDegree {
		return nil, newErr(ErrInvalidInput, "shDegree mismatch: a=%d b=%d", a.ShDegree, b.ShDegree)
	}

	c := &PackedGaussians{
		N:        a.N + b.N,
		ShDegree: a.ShDegree,
		Dynamic:  a.Dynamic || b.Dynamic,
	}

	c.Means = append(append(make([]mat.Vec4, 0, c.N), a.Means...), b.Means...)
	c.Covariance = append(append(make([][6]float32, 0, c.N), a.Covariance...), b.Covariance...)
	c.Opacity = append(append(make([]uint8, 0, c.N), a.Opacity...), b.Opacity...)

	c.ColorMin = minF32(a.ColorMin, b.ColorMin)
	c.ColorMax = maxF32(a.ColorMax, b.ColorMax)
	c.Color = make([][3]uint16, 0, c.N)
	for _, src := range []PackedGaussians{a, b} {
		for _, px := range src.Color {
			c.Color = append(c.Color, renormalize16(px, src.ColorMin, src.ColorMax, c.ColorMin, c.ColorMax))
		}
	}

	nonDC := shCoeffCount(c.ShDegree) - 1
	if nonDC > 0 {
		c.ShMin = minF32(a.ShMin, b.ShMin)
		c.ShMax = maxF32(a.ShMax, b.ShMax)
		c.SH = make([][3]uint8, 0, c.N*nonDC)
		for _, src := range []PackedGaussians{a, b} {
			for _, s := range src.SH {
				c.SH = append(c.SH, renormalize8(s, src.ShMin, src.ShMax, c.ShMin, c.ShMax))
			}
		}
	}

	if c.Dynamic {
		c.Velocity = make([]mat.Vec4, 0, c.N)
		for _, src := range []PackedGaussians{a, b} {
			if src.Dynamic {
				c.Velocity = append(c.Velocity, src.Velocity...)
			} else {
				for i := 0; i < src.N; i++ {
					c.Velocity = append(c.Velocity, mat.Vec4{})
				}
			}
		}
	}

	Logger().Debug("combine", "aN", a.N, "bN", b.N, "cN", c.N, "dynamic", c.Dynamic)

	return c, nil
}

func renormalize16(px [3]uint16, oldLo, oldHi, newLo, newHi float32) [3]uint16 {
	var out [3]uint16
	for i, q := range px {
		v := dequantizeChannel16(q, oldLo, oldHi)
		out[i] = quantizeChannel16(v, newLo, newHi)
	}
	return out
}

func renormalize8(s [3]uint8, oldLo, oldHi, newLo, newHi float32) [3]uint8 {
	var out [3]uint8
	for i, q := range s {
		v := dequantizeChannel8(q, oldLo, oldHi)
		out[i] = quantizeChannel8(v, newLo, newHi)
	}
	return out
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
