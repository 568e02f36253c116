// Package stepper implements the per-voxel forward-Euler diffusion update.
//
// The rule is an explicit seven-point stencil with obstacle-aware source
// distribution: voxels occupied by a cell are impermeable and contribute
// nothing to the Laplacian, while each occupied voxel's production is split
// evenly across its open face neighbors. The update reads from an input field
// and writes to a distinct output field, never in place, and every write is
// additive onto a pre-zeroed output buffer, so evaluation order across voxels
// is irrelevant.
//
// The kernel is written gather-style: each empty voxel computes its own
// diffusion term and pulls production shares from adjacent occupied voxels.
// This is algebraically identical to an occupied voxel pushing its shares
// outward (both are sums of the same additive terms) but makes every voxel's
// update independent of all other voxels' outputs, which the block-parallel
// dispatch model requires. The same rule is expressed in WGSL for the GPU
// backend; this package is the host-side reference both backends are tested
// against.
package stepper

import (
	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
)

// Params carries the constants the update rule needs. Combined is
// diffusionConstant * deltaTime / deltaSpace², recomputed by the scheduler
// whenever either constant changes. All arithmetic is 32-bit float.
type Params struct {
	Combined  float32
	DeltaTime float32
}

// OpenNeighbors counts the production-receiving directions of the occupied
// voxel at idx: the count starts at 6 and is decremented only for in-bounds
// neighbors that are themselves occupied. Out-of-bounds neighbors stay counted
// as open even though they can never receive production; the divisor
// deliberately reflects accessible-but-unwritable directions and this exact
// accounting must be preserved.
//
// Parameters:
//   - dims: the lattice dimensions
//   - occupancy: the per-voxel occupancy map
//   - idx: linear index of the occupied voxel
//
// Returns:
//   - int: the open-direction count in [0, 6]
func OpenNeighbors(dims grid.Dimensions, occupancy []int32, idx int) int {
	open := 6
	for axis := grid.AxisX; axis <= grid.AxisZ; axis++ {
		for _, dir := range [2]grid.Direction{grid.Negative, grid.Positive} {
			n := dims.NeighborIndex(idx, axis, dir)
			if n != grid.OutOfBounds && occupancy[n] != cell.Empty {
				open--
			}
		}
	}
	return open
}

// UpdateVoxel computes the next value of the voxel at idx from the input
// field. Occupied voxels return 0: their output slot is never written by
// diffusion physics and keeps whatever the pre-zeroed output buffer holds.
// Empty voxels accumulate their own diffusion term plus production shares
// gathered from adjacent occupied voxels.
//
// For the diffusion term, each of the six directions is classified:
// out-of-bounds contributes 0 to the neighbor sum but counts as open;
// in-bounds empty contributes that neighbor's input value and counts as open;
// in-bounds occupied contributes nothing and does not count. A cell whose
// OpenNeighbors count is 0 produces nothing that step, so no division by zero
// can occur.
//
// Parameters:
//   - dims: the lattice dimensions
//   - idx: linear index of the voxel to update
//   - in: the input concentration field
//   - occupancy: the per-voxel occupancy map
//   - cells: the flattened cell records occupancy values index into
//   - p: the step constants
//
// Returns:
//   - float32: the voxel's next value
func UpdateVoxel(dims grid.Dimensions, idx int, in []float32, occupancy []int32, cells []cell.Cell, p Params) float32 {
	if occupancy[idx] != cell.Empty {
		return 0
	}

	self := in[idx]
	var sum, produced float32
	numOpen := 0

	for axis := grid.AxisX; axis <= grid.AxisZ; axis++ {
		for _, dir := range [2]grid.Direction{grid.Negative, grid.Positive} {
			n := dims.NeighborIndex(idx, axis, dir)
			if n == grid.OutOfBounds {
				numOpen++
				continue
			}
			if owner := occupancy[n]; owner != cell.Empty {
				// Impermeable neighbor: excluded from the Laplacian, but it
				// sends this voxel its share of the owning cell's production.
				if open := OpenNeighbors(dims, occupancy, n); open > 0 {
					produced += cells[owner].ProductionRate * p.DeltaTime / float32(open)
				}
				continue
			}
			sum += in[n]
			numOpen++
		}
	}

	return self + p.Combined*(sum-float32(numOpen)*self) + produced
}

// StepBlock applies UpdateVoxel over one dispatch block with origin
// (x0, y0, z0) and edge length grid.BlockSize, clamped to the lattice so
// partial blocks at the grid edges no-op past the boundary.
//
// Parameters:
//   - dims: the lattice dimensions
//   - x0, y0, z0: block origin in voxel coordinates
//   - in: the input concentration field
//   - out: the pre-zeroed output field written into
//   - occupancy: the per-voxel occupancy map
//   - cells: the flattened cell records
//   - p: the step constants
func StepBlock(dims grid.Dimensions, x0, y0, z0 int, in, out []float32, occupancy []int32, cells []cell.Cell, p Params) {
	x1 := min(x0+grid.BlockSize, dims.X)
	y1 := min(y0+grid.BlockSize, dims.Y)
	z1 := min(z0+grid.BlockSize, dims.Z)
	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				idx := dims.ToIndex(x, y, z)
				out[idx] += UpdateVoxel(dims, idx, in, occupancy, cells, p)
			}
		}
	}
}

// Step applies the update rule over the whole lattice serially. The parallel
// backends cover the same voxels block by block; this form exists for tests
// and as the reference both backends must agree with.
//
// Parameters:
//   - dims: the lattice dimensions
//   - in: the input concentration field
//   - out: the pre-zeroed output field written into
//   - occupancy: the per-voxel occupancy map
//   - cells: the flattened cell records
//   - p: the step constants
func Step(dims grid.Dimensions, in, out []float32, occupancy []int32, cells []cell.Cell, p Params) {
	for idx := range out {
		out[idx] += UpdateVoxel(dims, idx, in, occupancy, cells, p)
	}
}
