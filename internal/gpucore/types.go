// Package gpucore carries the subset of the teacher's gpucore buffer-usage
// vocabulary this library needs: tag types describing which packed array a
// buffer view holds and how it is meant to be bound on the GPU side,
// attached to each view GPUBuffers returns so a caller can create the
// matching buffer without guessing.
//
// The teacher's gpucore additionally defines a whole GPUAdapter abstraction,
// pipeline stages, and texture/bind-group types for its rasterizer; none of
// that applies to a headless packing/codec library, so only BufferID,
// BufferUsage and its flag constants survive here (see DESIGN.md, "Deleted
// teacher modules").
package gpucore

// BufferID names which packed field a BufferView came from, so a caller
// iterating a slice of views can route each one to the right GPU binding
// without string-matching a field name.
type BufferID uint32

const (
	BufferIDMeans BufferID = iota + 1
	BufferIDCovariance
	BufferIDOpacity
	BufferIDColor
	BufferIDSH
	BufferIDVelocity
	BufferIDIndices
)

// BufferUsage is a bitmask describing how a buffer is meant to be bound.
type BufferUsage uint32

// Buffer usage flags, a subset of the teacher's full set relevant to
// read-only upload buffers (vertex/storage), not render targets or
// indirect-dispatch buffers.
const (
	// BufferUsageCopyDst indicates the buffer is a copy destination (the
	// CPU-side packed array is uploaded into it once).
	BufferUsageCopyDst BufferUsage = 1 << 0

	// BufferUsageVertex indicates the buffer can be bound as a vertex
	// buffer (means, color).
	BufferUsageVertex BufferUsage = 1 << 1

	// BufferUsageStorage indicates the buffer can be bound as a read-only
	// storage buffer (an alternative binding for the same arrays on
	// compute-shader-based splat renderers).
	BufferUsageStorage BufferUsage = 1 << 2

	// BufferUsageIndex indicates the buffer holds the sorter's output
	// index permutation.
	BufferUsageIndex BufferUsage = 1 << 3
)
