package mgs

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/splatsdotcom/mgs-go/internal/mat"
)

// magicWord is the four-byte container tag, computed exactly as §6.1
// specifies: ('g'|'l'<<8|'p'<<16|'s'<<24), referred to as "splg" in the
// spec text.
const magicWord uint32 = uint32('g') | uint32('l')<<8 | uint32('p')<<16 | uint32('s')<<24

// makeVersion packs (major, minor, patch) the way §6.1 defines:
// (M<<22)|(m<<12)|p.
func makeVersion(major, minor, patch uint32) uint32 {
	return major<<22 | minor<<12 | patch
}

// fileVersion is the only version this decoder accepts: 0.0.1.
const fileVersion = 1 // makeVersion(0, 0, 1)

// dynamicFlagBit and sceneIDFlagBit pack two booleans into the on-disk
// "dynamic" byte. Bit 0 is spec.md's original meaning; bit 1 is this
// module's additive extension (SPEC_FULL.md, "Container extensibility"):
// files that don't use it round-trip identically to spec.md's layout.
const (
	dynamicFlagBit = 1 << 0
	sceneIDFlagBit = 1 << 1
)

// byteSource is the capability polymorphism design note in §9: a single
// read(n bytes) operation with two concrete implementations, rather than an
// inheritance hierarchy.
type byteSource interface {
	readFull(buf []byte) *Error
}

type fileSource struct{ f *os.File }

func (s *fileSource) readFull(buf []byte) *Error {
	if _, err := io.ReadFull(s.f, buf); err != nil {
		return wrapErr(ErrFileRead, err, "read %d bytes", len(buf))
	}
	return nil
}

type bufferSource struct {
	b   []byte
	pos int
}

func (s *bufferSource) readFull(buf []byte) *Error {
	if s.pos+len(buf) > len(s.b) {
		return newErr(ErrInvalidInput, "short read: need %d bytes, have %d", len(buf), len(s.b)-s.pos)
	}
	copy(buf, s.b[s.pos:s.pos+len(buf)])
	s.pos += len(buf)
	return nil
}

// byteSink mirrors byteSource for writing: a file sink surfaces FILE_WRITE
// on failure, a buffer sink cannot fail.
type byteSink interface {
	writeAll(buf []byte) *Error
}

type fileSink struct{ f *os.File }

func (s *fileSink) writeAll(buf []byte) *Error {
	if _, err := s.f.Write(buf); err != nil {
		return wrapErr(ErrFileWrite, err, "write %d bytes", len(buf))
	}
	return nil
}

type bufferSink struct{ buf *bytes.Buffer }

func (s *bufferSink) writeAll(buf []byte) *Error {
	s.buf.Write(buf)
	return nil
}

// Encode writes pg and md to path in the §4.C/§6.1 container layout.
// Opening the file surfaces ErrFileOpen; a failing close surfaces
// ErrFileClose even if the write itself succeeded, matching §4.C's
// "a failing close on the output file surfaces as FILE_CLOSE."
func Encode(pg PackedGaussians, md Metadata, path string) *Error {
	f, err := os.Create(path)
	if err != nil {
		return wrapErr(ErrFileOpen, err, "create %s", path)
	}
	if encErr := encodeTo(&fileSink{f}, pg, md); encErr != nil {
		_ = f.Close()
		return encErr
	}
	if err := f.Close(); err != nil {
		return wrapErr(ErrFileClose, err, "close %s", path)
	}
	return nil
}

// EncodeBytes writes pg and md to an in-memory buffer in the same layout
// Encode uses, for callers that want the container without touching disk.
func EncodeBytes(pg PackedGaussians, md Metadata) ([]byte, *Error) {
	var buf bytes.Buffer
	if err := encodeTo(&bufferSink{&buf}, pg, md); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a container from path.
func Decode(path string) (*PackedGaussians, *Metadata, *Error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, wrapErr(ErrFileOpen, err, "open %s", path)
	}
	defer f.Close()
	return decodeFrom(&fileSource{f})
}

// DecodeBytes reads a container from an in-memory buffer. A short buffer
// fails ErrInvalidInput, per §4.C's decoder-source-specific error policy.
func DecodeBytes(data []byte) (*PackedGaussians, *Metadata, *Error) {
	return decodeFrom(&bufferSource{b: data})
}

func encodeTo(dst byteSink, pg PackedGaussians, md Metadata) *Error {
	if err := pg.validate(); err != nil {
		return err
	}

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, magicWord)
	binary.Write(&hdr, binary.LittleEndian, uint32(fileVersion))
	binary.Write(&hdr, binary.LittleEndian, md.Duration)

	if md.Duration < 0 {
		Logger().Warn("encode: negative duration", "duration", md.Duration)
	}

	dynByte := uint8(0)
	if pg.Dynamic {
		dynByte |= dynamicFlagBit
	}
	if md.SceneID != nil {
		dynByte |= sceneIDFlagBit
	}

	binary.Write(&hdr, binary.LittleEndian, uint32(pg.N))
	binary.Write(&hdr, binary.LittleEndian, dynByte)
	binary.Write(&hdr, binary.LittleEndian, uint32(pg.ShDegree))
	binary.Write(&hdr, binary.LittleEndian, pg.ColorMin)
	binary.Write(&hdr, binary.LittleEndian, pg.ColorMax)
	binary.Write(&hdr, binary.LittleEndian, pg.ShMin)
	binary.Write(&hdr, binary.LittleEndian, pg.ShMax)

	if err := dst.writeAll(hdr.Bytes()); err != nil {
		return err
	}

	var payload bytes.Buffer
	for _, m := range pg.Means {
		binary.Write(&payload, binary.LittleEndian, m.X)
		binary.Write(&payload, binary.LittleEndian, m.Y)
		binary.Write(&payload, binary.LittleEndian, m.Z)
		binary.Write(&payload, binary.LittleEndian, m.W)
	}
	for _, cov := range pg.Covariance {
		binary.Write(&payload, binary.LittleEndian, cov)
	}
	payload.Write(pg.Opacity)
	for _, c := range pg.Color {
		binary.Write(&payload, binary.LittleEndian, c)
	}
	if pg.ShDegree != 0 {
		for _, s := range pg.SH {
			payload.Write(s[:])
		}
	}
	if pg.Dynamic {
		for _, v := range pg.Velocity {
			binary.Write(&payload, binary.LittleEndian, v.X)
			binary.Write(&payload, binary.LittleEndian, v.Y)
			binary.Write(&payload, binary.LittleEndian, v.Z)
			binary.Write(&payload, binary.LittleEndian, v.W)
		}
	}
	if err := dst.writeAll(payload.Bytes()); err != nil {
		return err
	}

	if md.SceneID != nil {
		id, _ := md.SceneID.MarshalBinary()
		if err := dst.writeAll(id); err != nil {
			return err
		}
	}

	return nil
}

func decodeFrom(src byteSource) (*PackedGaussians, *Metadata, *Error) {
	var fileHdr [8]byte
	if err := src.readFull(fileHdr[:]); err != nil {
		return nil, nil, err
	}
	magic := binary.LittleEndian.Uint32(fileHdr[0:4])
	version := binary.LittleEndian.Uint32(fileHdr[4:8])
	if magic != magicWord {
		return nil, nil, newErr(ErrInvalidInput, "bad magic word: got %#x, want %#x", magic, magicWord)
	}
	if version != fileVersion {
		return nil, nil, newErr(ErrInvalidInput, "version mismatch: got %d, want %d", version, fileVersion)
	}

	var durBuf [4]byte
	if err := src.readFull(durBuf[:]); err != nil {
		return nil, nil, err
	}
	md := &Metadata{Duration: float32frombits(binary.LittleEndian.Uint32(durBuf[:]))}
	if md.Duration < 0 {
		Logger().Warn("decode: negative duration", "duration", md.Duration)
	}

	var countBuf [4]byte
	if err := src.readFull(countBuf[:]); err != nil {
		return nil, nil, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	var dynByte [1]byte
	if err := src.readFull(dynByte[:]); err != nil {
		return nil, nil, err
	}

	var shDegBuf [4]byte
	if err := src.readFull(shDegBuf[:]); err != nil {
		return nil, nil, err
	}
	shDegree := int(binary.LittleEndian.Uint32(shDegBuf[:]))

	var rangesBuf [16]byte
	if err := src.readFull(rangesBuf[:]); err != nil {
		return nil, nil, err
	}
	colorMin := float32frombits(binary.LittleEndian.Uint32(rangesBuf[0:4]))
	colorMax := float32frombits(binary.LittleEndian.Uint32(rangesBuf[4:8]))
	shMin := float32frombits(binary.LittleEndian.Uint32(rangesBuf[8:12]))
	shMax := float32frombits(binary.LittleEndian.Uint32(rangesBuf[12:16]))

	pg := &PackedGaussians{
		N:        int(count),
		ShDegree: shDegree,
		Dynamic:  dynByte[0]&dynamicFlagBit != 0,
		ColorMin: colorMin,
		ColorMax: colorMax,
		ShMin:    shMin,
		ShMax:    shMax,
	}
	if err := pg.validateHeader(); err != nil {
		return nil, nil, err
	}

	n := pg.N
	pg.Means = make([]mat.Vec4, n)
	meanBuf := make([]byte, 16)
	for i := 0; i < n; i++ {
		if err := src.readFull(meanBuf); err != nil {
			return nil, nil, err
		}
		pg.Means[i] = mat.Vec4{
			X: float32frombits(binary.LittleEndian.Uint32(meanBuf[0:4])),
			Y: float32frombits(binary.LittleEndian.Uint32(meanBuf[4:8])),
			Z: float32frombits(binary.LittleEndian.Uint32(meanBuf[8:12])),
			W: float32frombits(binary.LittleEndian.Uint32(meanBuf[12:16])),
		}
	}

	pg.Covariance = make([][6]float32, n)
	covBuf := make([]byte, 24)
	for i := 0; i < n; i++ {
		if err := src.readFull(covBuf); err != nil {
			return nil, nil, err
		}
		for k := 0; k < 6; k++ {
			pg.Covariance[i][k] = float32frombits(binary.LittleEndian.Uint32(covBuf[k*4 : k*4+4]))
		}
	}

	pg.Opacity = make([]uint8, n)
	if err := src.readFull(pg.Opacity); err != nil {
		return nil, nil, err
	}

	pg.Color = make([][3]uint16, n)
	colorBuf := make([]byte, 6)
	for i := 0; i < n; i++ {
		if err := src.readFull(colorBuf); err != nil {
			return nil, nil, err
		}
		pg.Color[i] = [3]uint16{
			binary.LittleEndian.Uint16(colorBuf[0:2]),
			binary.LittleEndian.Uint16(colorBuf[2:4]),
			binary.LittleEndian.Uint16(colorBuf[4:6]),
		}
	}

	nonDC := shCoeffCount(shDegree) - 1
	if shDegree != 0 {
		pg.SH = make([][3]uint8, n*nonDC)
		shBuf := make([]byte, 3)
		for i := range pg.SH {
			if err := src.readFull(shBuf); err != nil {
				return nil, nil, err
			}
			pg.SH[i] = [3]uint8{shBuf[0], shBuf[1], shBuf[2]}
		}
	}

	if pg.Dynamic {
		pg.Velocity = make([]mat.Vec4, n)
		velBuf := make([]byte, 16)
		for i := 0; i < n; i++ {
			if err := src.readFull(velBuf); err != nil {
				return nil, nil, err
			}
			pg.Velocity[i] = mat.Vec4{
				X: float32frombits(binary.LittleEndian.Uint32(velBuf[0:4])),
				Y: float32frombits(binary.LittleEndian.Uint32(velBuf[4:8])),
				Z: float32frombits(binary.LittleEndian.Uint32(velBuf[8:12])),
				W: float32frombits(binary.LittleEndian.Uint32(velBuf[12:16])),
			}
		}
	}

	if dynByte[0]&sceneIDFlagBit != 0 {
		idBuf := make([]byte, 16)
		if err := src.readFull(idBuf); err != nil {
			return nil, nil, err
		}
		id, uerr := uuid.FromBytes(idBuf)
		if uerr != nil {
			return nil, nil, wrapErr(ErrInvalidInput, uerr, "malformed sceneID chunk")
		}
		md.SceneID = &id
		pg.SceneID = &id
	}

	return pg, md, nil
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}
