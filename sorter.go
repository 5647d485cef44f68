package mgs

import (
	"sort"

	"github.com/splatsdotcom/mgs-go/internal/mat"
	"github.com/splatsdotcom/mgs-go/internal/parallel"
)

// Sorter computes a parallel, view-dependent back-to-front index
// permutation over a PackedGaussians (§4.D), optionally run on a
// background worker through its async driver (§4.E, see sorter_async.go).
//
// A Sorter holds a shared, read-only reference to a PackedGaussians; the
// caller must not drop that PackedGaussians while the Sorter is alive.
type Sorter struct {
	pg   *PackedGaussians
	opts sorterOptions
	pool *parallel.Pool

	asyncDriver
}

// NewSorter builds a Sorter over pg. If no pool is supplied via WithPool,
// the Sorter creates and owns one sized to runtime.GOMAXPROCS (the spec's
// HW_CONCURRENCY) and closes it in Close.
func NewSorter(pg *PackedGaussians, opts ...SorterOption) (*Sorter, *Error) {
	if err := pg.validate(); err != nil {
		return nil, err
	}
	o := defaultSorterOptions()
	for _, opt := range opts {
		opt(&o)
	}
	pool := o.pool
	if pool == nil {
		pool = parallel.New(0)
		o.ownsPool = true
	}
	return &Sorter{pg: pg, opts: o, pool: pool}, nil
}

// Close releases the Sorter's owned pool, if any, after joining any
// in-flight async sort (§4.E: "the worker must be joined before the
// Gaussian buffer it reads is released").
func (s *Sorter) Close() {
	s.joinBeforeRelease()
	if s.opts.ownsPool {
		s.pool.Close()
	}
}

// depthIndex is a single retained, unculled Gaussian: its original index
// and its view-space depth (camera-space z).
type depthIndex struct {
	index uint32
	depth float32
}

// Sort computes the back-to-front index permutation for the given view
// matrix V, projection matrix P, and time (§4.D). It fails with
// ErrInvalidArguments if an async sort is currently Running on this Sorter
// (§4.E: "Synchronous sort while Running is rejected").
func (s *Sorter) Sort(view, proj mat.Mat4, time float32) ([]uint32, *Error) {
	if !s.beginSync() {
		return nil, newErr(ErrInvalidArguments, "sort called while an async sort is running")
	}
	result := computeSort(s.pg, view, proj, time, s.pool, s.opts.partitionSize, s.opts.frustumSlack)
	s.endSync(result)
	return result, nil
}

// computeSort is the pure partition -> parallel per-partition cull+sort ->
// tree-merge -> final-merge algorithm described in §4.D. It neither reads
// nor mutates Sorter state, so both the synchronous and async entry points
// share it.
func computeSort(pg *PackedGaussians, view, proj mat.Mat4, time float32, pool *parallel.Pool, partitionSize int, slack float32) []uint32 {
	n := pg.N
	if n == 0 {
		return []uint32{}
	}

	p := n / partitionSize
	if p < 1 {
		p = 1
	}
	if hw := pool.Workers(); p > hw {
		p = hw
	}
	Logger().Debug("sort: partitions", "n", n, "partitions", p)

	bounds := partitionBounds(n, p)

	tasks := make([]func() []depthIndex, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]
		tasks = append(tasks, func() []depthIndex {
			return sortPartition(pg, view, proj, time, slack, lo, hi)
		})
	}

	futs := parallel.SubmitAll(pool, tasks)
	runs := make([][]depthIndex, 0, len(futs))
	for _, f := range futs {
		if r := f.Wait(); len(r) > 0 {
			runs = append(runs, r)
		}
	}

	runs = treeMerge(pool, runs)

	var merged []depthIndex
	switch len(runs) {
	case 0:
		merged = nil
	case 1:
		merged = runs[0]
	default:
		merged = mergeDesc(runs[0], runs[1])
	}

	indices := make([]uint32, len(merged))
	for i, di := range merged {
		indices[i] = di.index
	}
	return indices
}

// partitionBounds returns p+1 boundaries splitting [0,n) into p contiguous
// ranges whose sizes differ by at most one (§4.D step 1).
func partitionBounds(n, p int) []int {
	bounds := make([]int, p+1)
	base, rem := n/p, n%p
	cur := 0
	for i := 0; i < p; i++ {
		bounds[i] = cur
		size := base
		if i < rem {
			size++
		}
		cur += size
	}
	bounds[p] = n
	return bounds
}

// sortPartition computes world/camera/clip transforms, frustum-culls, and
// sorts the retained range [lo,hi) by descending depth (§4.D step 2).
func sortPartition(pg *PackedGaussians, view, proj mat.Mat4, time, slack float32, lo, hi int) []depthIndex {
	out := make([]depthIndex, 0, hi-lo)
	for j := lo; j < hi; j++ {
		m := pg.Means[j]
		world := mat.Vec4{X: m.X, Y: m.Y, Z: m.Z, W: 1}
		if pg.Dynamic {
			v := pg.Velocity[j]
			world.X += v.X * time
			world.Y += v.Y * time
			world.Z += v.Z * time
		}
		cam := view.MulVec4(world)
		clip := proj.MulVec4(cam)

		bound := slack * clip.W
		if mat.Abs32(clip.X) > bound || mat.Abs32(clip.Y) > bound || mat.Abs32(clip.Z) > bound {
			continue
		}
		out = append(out, depthIndex{index: uint32(j), depth: cam.Z})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].depth > out[k].depth })
	return out
}

// treeMerge pairs adjacent runs and merges each pair in parallel, carrying
// an odd survivor forward unmerged, until at most two runs remain (§4.D
// step 3). Each level's merges complete before the next level starts.
func treeMerge(pool *parallel.Pool, runs [][]depthIndex) [][]depthIndex {
	for len(runs) > 2 {
		pairs := len(runs) / 2
		tasks := make([]func() []depthIndex, pairs)
		for i := 0; i < pairs; i++ {
			a, b := runs[2*i], runs[2*i+1]
			tasks[i] = func() []depthIndex { return mergeDesc(a, b) }
		}
		futs := parallel.SubmitAll(pool, tasks)

		next := make([][]depthIndex, 0, pairs+1)
		for _, f := range futs {
			next = append(next, f.Wait())
		}
		if len(runs)%2 == 1 {
			next = append(next, runs[len(runs)-1])
		}
		runs = next
	}
	return runs
}

// mergeDesc merges two depth-descending runs into one depth-descending
// run (the workhorse of both the tree merge and the final merge).
func mergeDesc(a, b []depthIndex) []depthIndex {
	out := make([]depthIndex, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].depth >= b[j].depth {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
