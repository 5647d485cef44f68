package mgs

import (
	"reflect"
	"testing"
	"time"

	"github.com/splatsdotcom/mgs-go/internal/mat"
	"github.com/splatsdotcom/mgs-go/internal/parallel"
)

func TestPartitionBoundsCoverRangeEvenly(t *testing.T) {
	tests := []struct{ n, p int }{
		{10, 3}, {9, 3}, {1, 4}, {100, 7},
	}
	for _, tt := range tests {
		bounds := partitionBounds(tt.n, tt.p)
		if len(bounds) != tt.p+1 {
			t.Fatalf("partitionBounds(%d,%d): got %d bounds, want %d", tt.n, tt.p, len(bounds), tt.p+1)
		}
		if bounds[0] != 0 || bounds[len(bounds)-1] != tt.n {
			t.Errorf("partitionBounds(%d,%d): bounds = %v, want to span [0,%d]", tt.n, tt.p, bounds, tt.n)
		}
		minSize, maxSize := tt.n, 0
		for i := 0; i < tt.p; i++ {
			size := bounds[i+1] - bounds[i]
			if size < minSize {
				minSize = size
			}
			if size > maxSize {
				maxSize = size
			}
		}
		if maxSize-minSize > 1 {
			t.Errorf("partitionBounds(%d,%d): sizes differ by more than one (min=%d max=%d)", tt.n, tt.p, minSize, maxSize)
		}
	}
}

func TestMergeDescMaintainsDescendingOrderAndElements(t *testing.T) {
	a := []depthIndex{{index: 0, depth: 5}, {index: 1, depth: 2}}
	b := []depthIndex{{index: 2, depth: 4}, {index: 3, depth: 1}}

	got := mergeDesc(a, b)
	if len(got) != 4 {
		t.Fatalf("mergeDesc() len = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].depth < got[i].depth {
			t.Errorf("mergeDesc() not descending at %d: %v", i, got)
		}
	}
	seen := map[uint32]bool{}
	for _, di := range got {
		seen[di.index] = true
	}
	for _, idx := range []uint32{0, 1, 2, 3} {
		if !seen[idx] {
			t.Errorf("mergeDesc() dropped index %d", idx)
		}
	}
}

func packAtMeans(t *testing.T, means []mat.Vec3) *PackedGaussians {
	t.Helper()
	n := len(means)
	fg := makeValidFloatGaussians(n, 0, false)
	for i, m := range means {
		fg.Means[i] = m
		fg.SH[i] = mat.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	}
	pg, err := Pack(fg)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return pg
}

// With view = proj = identity, clip == cam == world (w=1), so the frustum
// test reduces to |coord| > 1.2 on each axis directly against world space.
func TestSortPartitionCullsOutsideSlackBound(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{
		{X: 0, Y: 0, Z: 0.5},  // inside
		{X: 0, Y: 0, Z: 1.3},  // culled: |z| > 1.2
		{X: 1.1, Y: 0, Z: 0},  // inside: 1.1 <= 1.2
		{X: 1.3, Y: 0, Z: 0},  // culled: |x| > 1.2
	})
	out := sortPartition(pg, mat.Identity4(), mat.Identity4(), 0, 1.2, 0, pg.N)

	if len(out) != 2 {
		t.Fatalf("sortPartition() retained %d, want 2", len(out))
	}
	retained := map[uint32]bool{}
	for _, di := range out {
		retained[di.index] = true
	}
	if !retained[0] || !retained[2] {
		t.Errorf("sortPartition() retained %v, want indices {0,2}", out)
	}
}

func TestSortPartitionOrdersByDescendingDepth(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{
		{X: 0, Y: 0, Z: -0.5},
		{X: 0, Y: 0, Z: 0.9},
		{X: 0, Y: 0, Z: 0.1},
	})
	out := sortPartition(pg, mat.Identity4(), mat.Identity4(), 0, 1.2, 0, pg.N)
	if len(out) != 3 {
		t.Fatalf("sortPartition() retained %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].depth < out[i].depth {
			t.Fatalf("sortPartition() not descending: %v", out)
		}
	}
}

func TestComputeSortEverythingCulledYieldsEmpty(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{{X: 10, Y: 10, Z: 10}})
	pool := parallel.New(2)
	defer pool.Close()

	indices := computeSort(pg, mat.Identity4(), mat.Identity4(), 0, pool, defaultPartitionSize, defaultFrustumSlack)
	if len(indices) != 0 {
		t.Errorf("computeSort() = %v, want empty", indices)
	}
}

func TestComputeSortDynamicAppliesVelocityTimesTime(t *testing.T) {
	fg := makeValidFloatGaussians(1, 0, true)
	fg.Means[0] = mat.Vec3{X: 0, Y: 0, Z: 5} // outside the frustum before displacement
	fg.Velocities[0] = mat.Vec3{X: 0, Y: 0, Z: -5}
	fg.SH[0] = mat.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	pg, err := Pack(fg)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	pool := parallel.New(2)
	defer pool.Close()

	// At time=1, world z = 5 + (-5)*1 = 0, inside the frustum.
	indices := computeSort(pg, mat.Identity4(), mat.Identity4(), 1, pool, defaultPartitionSize, defaultFrustumSlack)
	if len(indices) != 1 || indices[0] != 0 {
		t.Errorf("computeSort() at time=1 = %v, want [0]", indices)
	}

	// At time=0, world z = 5, outside the frustum.
	indices = computeSort(pg, mat.Identity4(), mat.Identity4(), 0, pool, defaultPartitionSize, defaultFrustumSlack)
	if len(indices) != 0 {
		t.Errorf("computeSort() at time=0 = %v, want empty", indices)
	}
}

func TestComputeSortMatchesNaiveForManyPartitions(t *testing.T) {
	means := make([]mat.Vec3, 37)
	for i := range means {
		// Spread z in [-1,1] so most points land inside the frustum and
		// distinct depths make the ordering unambiguous.
		z := -1 + 2*float32(i)/float32(len(means)-1)
		means[i] = mat.Vec3{X: 0, Y: 0, Z: z}
	}
	pg := packAtMeans(t, means)
	pool := parallel.New(4)
	defer pool.Close()

	got := computeSort(pg, mat.Identity4(), mat.Identity4(), 0, pool, 4, 1.2)

	want := sortPartition(pg, mat.Identity4(), mat.Identity4(), 0, 1.2, 0, pg.N)
	wantIndices := make([]uint32, len(want))
	for i, di := range want {
		wantIndices[i] = di.index
	}

	if !reflect.DeepEqual(got, wantIndices) {
		t.Errorf("computeSort() with small partitions = %v, want %v (matching a single unpartitioned pass)", got, wantIndices)
	}
}

func TestSorterSyncRejectsWhileRunning(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{{X: 0, Y: 0, Z: 0}})
	s, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer s.Close()

	s.state = stateRunning // simulate an in-flight async sort
	if _, err := s.Sort(mat.Identity4(), mat.Identity4(), 0); err == nil {
		t.Error("Sort() while Running = nil error, want ErrInvalidArguments")
	}
}

func TestSorterTryJoinWhileIdleIsError(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{{X: 0, Y: 0, Z: 0}})
	s, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer s.Close()

	if _, err := s.TryJoin(); err == nil {
		t.Error("TryJoin() while Idle = nil error, want ErrInvalidArguments")
	}
}

func TestSorterAsyncEquivalentToSync(t *testing.T) {
	means := []mat.Vec3{{X: 0, Y: 0, Z: -0.2}, {X: 0, Y: 0, Z: 0.3}, {X: 0, Y: 0, Z: 0.1}}
	pg := packAtMeans(t, means)

	syncSorter, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer syncSorter.Close()
	wantIndices, err := syncSorter.Sort(mat.Identity4(), mat.Identity4(), 0)
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}

	asyncSorter, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer asyncSorter.Close()

	if err := asyncSorter.Start(mat.Identity4(), mat.Identity4(), 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !asyncSorter.Pending() {
		t.Error("Pending() = false immediately after Start, want true")
	}

	deadline := time.After(2 * time.Second)
	for {
		done, err := asyncSorter.TryJoin()
		if err != nil {
			t.Fatalf("TryJoin() error = %v", err)
		}
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("async sort did not complete in time")
		case <-time.After(time.Millisecond):
		}
	}

	if asyncSorter.Pending() {
		t.Error("Pending() = true after TryJoin returned true, want false")
	}
	got := asyncSorter.GetLatest()
	if !reflect.DeepEqual(got, wantIndices) {
		t.Errorf("async GetLatest() = %v, want %v (sync equivalence)", got, wantIndices)
	}
}

func TestSorterStartRejectsWhileAlreadyRunning(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{{X: 0, Y: 0, Z: 0}})
	s, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer s.Close()

	s.state = stateRunning
	s.doneCh = make(chan struct{})
	defer close(s.doneCh)

	if err := s.Start(mat.Identity4(), mat.Identity4(), 0); err == nil {
		t.Error("Start() while already Running = nil error, want ErrInvalidArguments")
	}
}

func TestSorterGetLatestEmptyBeforeAnySort(t *testing.T) {
	pg := packAtMeans(t, []mat.Vec3{{X: 0, Y: 0, Z: 0}})
	s, err := NewSorter(pg)
	if err != nil {
		t.Fatalf("NewSorter() error = %v", err)
	}
	defer s.Close()

	if got := s.GetLatest(); len(got) != 0 {
		t.Errorf("GetLatest() before any sort = %v, want empty", got)
	}
}
