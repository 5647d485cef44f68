// Package mat provides the small 3D/4D linear algebra used by the packer
// and sorter: vectors, quaternions, and row-major 4x4 matrices.
//
// The teacher package's own [matrix] type is a 2D affine (3x2) transform
// meant for path rendering and has no notion of a projective 4x4 matrix or
// a quaternion, so this package's row-major Mat4 convention is grounded on
// lukaszgryglicki-photons4d's Mat4 instead (a repo in the same retrieval
// pack, used for its 4x4 row-major layout and Mul ordering, not copied
// verbatim — its Mat4 is a 4x4-only type with no Vec3/Quat/covariance
// helpers).
package mat

import "math"

// Vec3 is a 3-component vector: a position, scale, or direction.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns a+b.
func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }

// Mul returns a scaled by s.
func (a Vec3) Mul(s float32) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }

// Vec4 is a homogeneous 4-component vector.
type Vec4 struct {
	X, Y, Z, W float32
}

// Quat is a unit quaternion (x, y, z, w) representing a rotation.
type Quat struct {
	X, Y, Z, W float32
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 struct {
	M [3][3]float32
}

// RotationMatrix converts a quaternion to its equivalent 3x3 rotation
// matrix using the standard closed-form conversion, which assumes q is a
// unit quaternion. A non-unit q is not rejected here (that validation
// belongs to the caller) but yields a matrix that is not a rotation.
func (q Quat) RotationMatrix() Mat3 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	x2, y2, z2 := x+x, y+y, z+z
	xx, yy, zz := x*x2, y*y2, z*z2
	xy, xz, yz := x*y2, x*z2, y*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	return Mat3{M: [3][3]float32{
		{1 - (yy + zz), xy - wz, xz + wy},
		{xy + wz, 1 - (xx + zz), yz - wx},
		{xz - wy, yz + wx, 1 - (xx + yy)},
	}}
}

// Mat4 is a row-major 4x4 matrix, used for view and projection transforms.
type Mat4 struct {
	M [4][4]float32
}

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	var m Mat4
	for i := 0; i < 4; i++ {
		m.M[i][i] = 1
	}
	return m
}

// MulVec4 applies the matrix to a homogeneous vector: A*v.
func (a Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		X: a.M[0][0]*v.X + a.M[0][1]*v.Y + a.M[0][2]*v.Z + a.M[0][3]*v.W,
		Y: a.M[1][0]*v.X + a.M[1][1]*v.Y + a.M[1][2]*v.Z + a.M[1][3]*v.W,
		Z: a.M[2][0]*v.X + a.M[2][1]*v.Y + a.M[2][2]*v.Z + a.M[2][3]*v.W,
		W: a.M[3][0]*v.X + a.M[3][1]*v.Y + a.M[3][2]*v.Z + a.M[3][3]*v.W,
	}
}

// Mat4FromRowMajor builds a Mat4 from a 16-element row-major slice, the
// wire format used by §6.2's programmatic surface for view/proj matrices.
func Mat4FromRowMajor(m [16]float32) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out.M[r][c] = m[r*4+c]
		}
	}
	return out
}

// Covariance computes the six distinct entries of 4*M*Mᵀ where
// M = diag(scale)*R(rotation), in row-major upper-triangle order:
// (Σ00, Σ01, Σ02, Σ11, Σ12, Σ22). This ordering is load-bearing: the codec
// writes it directly to the container's covariance payload and the render
// shader on the consuming end expects this exact layout.
func Covariance(scale Vec3, rotation Quat) [6]float32 {
	r := rotation.RotationMatrix()

	// Row i of M is scale[i] * row i of R.
	row := func(i int) [3]float32 {
		s := [3]float32{scale.X, scale.Y, scale.Z}[i]
		return [3]float32{r.M[i][0] * s, r.M[i][1] * s, r.M[i][2] * s}
	}
	dot := func(a, b [3]float32) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

	m0, m1, m2 := row(0), row(1), row(2)
	return [6]float32{
		4 * dot(m0, m0),
		4 * dot(m0, m1),
		4 * dot(m0, m2),
		4 * dot(m1, m1),
		4 * dot(m1, m2),
		4 * dot(m2, m2),
	}
}

// Clamp01 clamps x to [0, 1].
func Clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Abs32 is float32 absolute value, avoiding a float64 round trip through
// math.Abs in the sorter's hot frustum-test loop.
func Abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}
