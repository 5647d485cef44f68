package mgs

import (
	"errors"
	"testing"

	"github.com/splatsdotcom/mgs-go/internal/mat"
)

func packSimple(t *testing.T, n, shDegree int, dynamic bool, colorVal float32) *PackedGaussians {
	t.Helper()
	fg := makeValidFloatGaussians(n, shDegree, dynamic)
	stride := shCoeffCount(shDegree)
	for i := 0; i < n; i++ {
		for k := 0; k < stride; k++ {
			fg.SH[i*stride+k] = mat.Vec3{X: colorVal, Y: colorVal, Z: colorVal}
		}
	}
	pg, err := Pack(fg)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return pg
}

func TestCombineConcatenatesCounts(t *testing.T) {
	a := packSimple(t, 3, 0, false, 0.5)
	b := packSimple(t, 2, 0, false, 0.5)

	c, err := Combine(*a, *b)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if c.N != 5 {
		t.Errorf("N = %d, want 5", c.N)
	}
	if len(c.Means) != 5 || len(c.Covariance) != 5 || len(c.Opacity) != 5 || len(c.Color) != 5 {
		t.Errorf("combined arrays not all length 5: %+v", c)
	}
}

func TestCombineRejectsMismatchedShDegree(t *testing.T) {
	a := packSimple(t, 1, 0, false, 0.5)
	b := packSimple(t, 1, 1, false, 0.5)

	_, err := Combine(*a, *b)
	if err == nil || !errors.Is(err, &Error{Kind: ErrInvalidInput}) {
		t.Errorf("Combine() err = %v, want ErrInvalidInput", err)
	}
}

func TestCombineRenormalizesColorAcrossUnion(t *testing.T) {
	a := packSimple(t, 1, 0, false, -1)
	b := packSimple(t, 1, 0, false, 1)

	c, err := Combine(*a, *b)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if c.ColorMin != -1 || c.ColorMax != 1 {
		t.Errorf("ColorMin/Max = %v/%v, want -1/1", c.ColorMin, c.ColorMax)
	}
	// a's color (-1) sits at the new range's minimum, b's (1) at the max.
	if c.Color[0][0] != 0 {
		t.Errorf("Color[0][0] = %d, want 0 (renormalized to new min)", c.Color[0][0])
	}
	if c.Color[1][0] != 65535 {
		t.Errorf("Color[1][0] = %d, want 65535 (renormalized to new max)", c.Color[1][0])
	}
}

func TestCombineDynamicFillsZeroVelocityForStaticSide(t *testing.T) {
	a := packSimple(t, 1, 0, false, 0.5)
	b := packSimple(t, 1, 0, true, 0.5)

	c, err := Combine(*a, *b)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if !c.Dynamic {
		t.Fatal("Dynamic = false, want true when either side is dynamic")
	}
	if len(c.Velocity) != 2 {
		t.Fatalf("len(Velocity) = %d, want 2", len(c.Velocity))
	}
	if c.Velocity[0] != (mat.Vec4{}) {
		t.Errorf("Velocity[0] = %v, want zero (from the static side)", c.Velocity[0])
	}
}
