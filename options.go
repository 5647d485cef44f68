package mgs

import "github.com/splatsdotcom/mgs-go/internal/parallel"

// SorterOption configures a Sorter during construction, following the
// teacher's functional-options convention (ContextOption/WithRenderer in
// options.go) generalized from context construction to sorter construction.
type SorterOption func(*sorterOptions)

type sorterOptions struct {
	pool          *parallel.Pool
	ownsPool      bool
	partitionSize int
	frustumSlack  float32
}

// defaultPartitionSize is the divisor in §4.D's partition-count formula:
// P = min(HW_CONCURRENCY, max(1, N/defaultPartitionSize)).
const defaultPartitionSize = 5000

// defaultFrustumSlack is §4.D's k = 1.2.
const defaultFrustumSlack float32 = 1.2

func defaultSorterOptions() sorterOptions {
	return sorterOptions{
		partitionSize: defaultPartitionSize,
		frustumSlack:  defaultFrustumSlack,
	}
}

// WithPool injects a caller-owned worker pool instead of the Sorter
// creating and owning its own. A caller such as a test can use this to pin
// parallelism and make sort deterministic to drive (§9 design note: "a dependency-injected pool
// is preferred so tests can control parallelism").
func WithPool(p *parallel.Pool) SorterOption {
	return func(o *sorterOptions) {
		o.pool = p
		o.ownsPool = false
	}
}

// WithPartitionSize overrides the target number of Gaussians per partition
// used to derive the partition count (default 5000).
func WithPartitionSize(n int) SorterOption {
	return func(o *sorterOptions) {
		if n > 0 {
			o.partitionSize = n
		}
	}
}

// WithFrustumSlack overrides the frustum culling slack multiplier k
// (default 1.2).
func WithFrustumSlack(k float32) SorterOption {
	return func(o *sorterOptions) {
		o.frustumSlack = k
	}
}
