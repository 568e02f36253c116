package sim

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
)

// GPUSimParams is the GPU-aligned representation of the step constants and
// grid extents bound as the compute shader's uniform block. Matches the WGSL
// SimParams struct layout exactly (32 bytes, std140 aligned, no padding
// between members).
type GPUSimParams struct {
	DimX      uint32  // offset  0: grid extent along x (4 bytes)
	DimY      uint32  // offset  4: grid extent along y (4 bytes)
	DimZ      uint32  // offset  8: grid extent along z (4 bytes)
	CellCount uint32  // offset 12: number of flattened cell records (4 bytes)
	Combined  float32 // offset 16: diffusionConstant * deltaTime / deltaSpace² (4 bytes)
	DeltaTime float32 // offset 20: step length in simulation time (4 bytes)
	Pad0      float32 // offset 24: pad to 16-byte multiple (4 bytes)
	Pad1      float32 // offset 28: pad to 16-byte multiple (4 bytes)
}

// Size returns the size of the GPUSimParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUSimParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSimParams struct into a byte buffer suitable for
// GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUSimParams) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], g.DimX)
	binary.LittleEndian.PutUint32(buf[4:8], g.DimY)
	binary.LittleEndian.PutUint32(buf[8:12], g.DimZ)
	binary.LittleEndian.PutUint32(buf[12:16], g.CellCount)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Combined))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.DeltaTime))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Pad0))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Pad1))
	return buf
}

// GPUCell is the GPU-aligned representation of one flattened cell record.
// Matches the WGSL CellData struct layout exactly: vec3<i32> position followed
// by an f32 production rate (16 bytes, std430 aligned).
type GPUCell struct {
	X, Y, Z int32   // offset 0: voxel coordinate (12 bytes)
	Rate    float32 // offset 12: production rate per unit time (4 bytes)
}

// Size returns the size of the GPUCell struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUCell) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCell struct into a byte buffer suitable for GPU
// upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUCell) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(g.X))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(g.Y))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(g.Z))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Rate))
	return buf
}

// marshalCells flattens cell records into one contiguous upload buffer in
// registry order. An all-zero dummy record is emitted for an empty registry so
// the storage binding always has a non-zero size; the shader never reads it
// because the occupancy map holds no index in that case.
func marshalCells(cells []cell.Cell) []byte {
	if len(cells) == 0 {
		dummy := GPUCell{}
		return dummy.Marshal()
	}
	buf := make([]byte, 0, len(cells)*16)
	for _, c := range cells {
		g := GPUCell{X: int32(c.X), Y: int32(c.Y), Z: int32(c.Z), Rate: c.ProductionRate}
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
