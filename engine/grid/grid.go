package grid

import "fmt"

// OutOfBounds is the sentinel returned by neighbor lookups whose target
// coordinate falls outside the lattice. Boundary handling is part of the
// stencil, not an error path, so out-of-range queries never fail.
const OutOfBounds = -1

// BlockSize is the edge length of the fixed 3D dispatch blocks used to cover
// the lattice. Both execution backends walk the grid in BlockSize³ blocks with
// ceiling division on each axis; lanes past the grid edge no-op.
const BlockSize = 8

// Axis identifies one of the three lattice axes for neighbor lookups.
type Axis int

const (
	// AxisX is the fastest-varying axis in the linear index.
	AxisX Axis = iota
	// AxisY is the middle axis in the linear index.
	AxisY
	// AxisZ is the slowest-varying axis in the linear index.
	AxisZ
)

// Direction selects which face neighbor along an axis to look up.
type Direction int

const (
	// Negative looks toward the coordinate origin.
	Negative Direction = -1
	// Positive looks away from the coordinate origin.
	Positive Direction = 1
)

// Dimensions describes the extent of the 3D lattice. All three extents must be
// positive; dimensions are fixed for the lifetime of a simulator instance.
type Dimensions struct {
	X, Y, Z int
}

// Validate checks that all three extents are positive.
//
// Returns:
//   - error: nil if the dimensions are usable, otherwise a descriptive error
func (d Dimensions) Validate() error {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return fmt.Errorf("grid: dimensions must be positive, got %dx%dx%d", d.X, d.Y, d.Z)
	}
	return nil
}

// VoxelCount returns the total number of voxels in the lattice.
//
// Returns:
//   - int: X*Y*Z
func (d Dimensions) VoxelCount() int {
	return d.X * d.Y * d.Z
}

// Contains reports whether the coordinate triple lies inside the lattice.
//
// Parameters:
//   - x, y, z: the coordinate to test
//
// Returns:
//   - bool: true if 0 <= x < X, 0 <= y < Y and 0 <= z < Z
func (d Dimensions) Contains(x, y, z int) bool {
	return x >= 0 && x < d.X && y >= 0 && y < d.Y && z >= 0 && z < d.Z
}

// ToIndex converts a coordinate triple to its linear voxel index using the
// convention idx = x + y*X + z*X*Y. The same convention is used for the
// concentration field, the occupancy map and neighbor lookups.
//
// Parameters:
//   - x, y, z: the coordinate to convert, assumed in bounds
//
// Returns:
//   - int: the linear voxel index
func (d Dimensions) ToIndex(x, y, z int) int {
	return x + y*d.X + z*d.X*d.Y
}

// FromIndex converts a linear voxel index back to its coordinate triple.
//
// Parameters:
//   - idx: the linear voxel index, assumed in [0, VoxelCount)
//
// Returns:
//   - x, y, z: the decoded coordinate
func (d Dimensions) FromIndex(idx int) (x, y, z int) {
	x = idx % d.X
	y = (idx / d.X) % d.Y
	z = idx / (d.X * d.Y)
	return
}

// NeighborIndex returns the linear index of the face neighbor of idx along the
// given axis and direction, or OutOfBounds when the neighbor falls outside the
// lattice.
//
// Parameters:
//   - idx: the linear index of the voxel whose neighbor is requested
//   - axis: the axis to move along
//   - dir: Negative or Positive
//
// Returns:
//   - int: the neighbor's linear index, or OutOfBounds
func (d Dimensions) NeighborIndex(idx int, axis Axis, dir Direction) int {
	x, y, z := d.FromIndex(idx)
	switch axis {
	case AxisX:
		x += int(dir)
	case AxisY:
		y += int(dir)
	case AxisZ:
		z += int(dir)
	}
	if !d.Contains(x, y, z) {
		return OutOfBounds
	}
	return d.ToIndex(x, y, z)
}

// BlockCounts computes the number of BlockSize³ dispatch blocks needed to
// cover the lattice on each axis, rounding up so partial blocks at the grid
// edges are still dispatched.
//
// Returns:
//   - bx, by, bz: block counts along each axis
func (d Dimensions) BlockCounts() (bx, by, bz uint32) {
	bx = (uint32(d.X) + BlockSize - 1) / BlockSize
	by = (uint32(d.Y) + BlockSize - 1) / BlockSize
	bz = (uint32(d.Z) + BlockSize - 1) / BlockSize
	return
}
