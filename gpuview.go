package mgs

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/splatsdotcom/mgs-go/internal/gpucore"
)

func mathFloat32bits(f float32) uint32 { return math.Float32bits(f) }

// MeansVertexBufferLayout describes the means buffer as a gputypes vertex
// attribute (one vec4 per Gaussian: xyz position, w = tMean/0.5) for a
// renderer that reads covariance/color/sh out of storage buffers in the
// shader and only needs means bound as a vertex attribute — the layout a
// gputypes-based splat renderer binds this library's
// [PackedGaussians.GPUBuffers] means view with.
func MeansVertexBufferLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: 16,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
		},
	}
}

// BufferView is a single packed field laid out as raw, ready-to-upload
// bytes, tagged with the usage a renderer should bind it with.
type BufferView struct {
	ID    gpucore.BufferID
	Usage gpucore.BufferUsage
	Bytes []byte
}

// GPUBuffers lays every populated field of pg out as little-endian byte
// views suitable for a one-shot GPU upload (one buffer per field, rather
// than one interleaved vertex buffer, matching how a splat renderer binds
// means/covariance/color/sh as separate storage buffers). The SH view is
// omitted when pg has no SH, the Velocity view when pg has no velocities.
func (pg *PackedGaussians) GPUBuffers() ([]BufferView, *Error) {
	if err := pg.validate(); err != nil {
		return nil, err
	}

	views := make([]BufferView, 0, 6)

	means := make([]byte, len(pg.Means)*16)
	for i, m := range pg.Means {
		o := i * 16
		binary.LittleEndian.PutUint32(means[o:], mathFloat32bits(m.X))
		binary.LittleEndian.PutUint32(means[o+4:], mathFloat32bits(m.Y))
		binary.LittleEndian.PutUint32(means[o+8:], mathFloat32bits(m.Z))
		binary.LittleEndian.PutUint32(means[o+12:], mathFloat32bits(m.W))
	}
	views = append(views, BufferView{
		ID:    gpucore.BufferIDMeans,
		Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
		Bytes: means,
	})

	cov := make([]byte, len(pg.Covariance)*24)
	for i, c := range pg.Covariance {
		o := i * 24
		for k, v := range c {
			binary.LittleEndian.PutUint32(cov[o+k*4:], mathFloat32bits(v))
		}
	}
	views = append(views, BufferView{
		ID:    gpucore.BufferIDCovariance,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
		Bytes: cov,
	})

	views = append(views, BufferView{
		ID:    gpucore.BufferIDOpacity,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
		Bytes: append([]byte(nil), pg.Opacity...),
	})

	color := make([]byte, len(pg.Color)*6)
	for i, c := range pg.Color {
		o := i * 6
		binary.LittleEndian.PutUint16(color[o:], c[0])
		binary.LittleEndian.PutUint16(color[o+2:], c[1])
		binary.LittleEndian.PutUint16(color[o+4:], c[2])
	}
	views = append(views, BufferView{
		ID:    gpucore.BufferIDColor,
		Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
		Bytes: color,
	})

	if len(pg.SH) > 0 {
		sh := make([]byte, 0, len(pg.SH)*3)
		for _, s := range pg.SH {
			sh = append(sh, s[0], s[1], s[2])
		}
		views = append(views, BufferView{
			ID:    gpucore.BufferIDSH,
			Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
			Bytes: sh,
		})
	}

	if len(pg.Velocity) > 0 {
		vel := make([]byte, len(pg.Velocity)*16)
		for i, v := range pg.Velocity {
			o := i * 16
			binary.LittleEndian.PutUint32(vel[o:], mathFloat32bits(v.X))
			binary.LittleEndian.PutUint32(vel[o+4:], mathFloat32bits(v.Y))
			binary.LittleEndian.PutUint32(vel[o+8:], mathFloat32bits(v.Z))
			binary.LittleEndian.PutUint32(vel[o+12:], mathFloat32bits(v.W))
		}
		views = append(views, BufferView{
			ID:    gpucore.BufferIDVelocity,
			Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
			Bytes: vel,
		})
	}

	return views, nil
}

// IndicesBufferView lays a Sorter's output permutation out as a
// little-endian uint32 byte view, tagged for an index-buffer binding.
func IndicesBufferView(indices []uint32) BufferView {
	b := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(b[i*4:], idx)
	}
	return BufferView{
		ID:    gpucore.BufferIDIndices,
		Usage: gpucore.BufferUsageIndex | gpucore.BufferUsageCopyDst,
		Bytes: b,
	}
}
