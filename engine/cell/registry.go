package cell

import (
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
)

// Empty is the occupancy-map value for a voxel not occupied by any cell.
const Empty = -1

// Cell is one discrete biological cell occupying a single voxel. It acts as a
// point source of the diffusing substance and as an impermeable obstacle.
// Cells are identified by their index in the registry's ordered sequence;
// occupancy-map values reference exactly that index.
type Cell struct {
	// X, Y, Z is the cell's voxel coordinate, which must lie inside the grid.
	X, Y, Z int
	// ProductionRate is the amount of substance produced per unit time,
	// distributed evenly across the cell's open face neighbors. Must be >= 0.
	ProductionRate float32
}

// registry is the unexported implementation of Registry.
type registry struct {
	dims grid.Dimensions

	// cells is the working set in registry order. Replaced wholesale by
	// SetCells, never mutated in place.
	cells []Cell
	// occupancy holds one value per voxel: Empty, or the index of the
	// occupying cell in cells. Rebuilt in full on every SetCells so no stale
	// entries can survive a cell move or removal.
	occupancy []int32
}

// Registry owns the set of cells occupying the grid and derives the occupancy
// map the stepper's obstacle and source logic reads. Overlapping cell
// positions are a caller-enforced precondition and are not validated here; the
// second cell stamped onto a shared voxel simply wins. An empty registry is
// valid and degenerates the simulation to pure diffusion.
type Registry interface {
	// SetCells replaces the working set and rebuilds the occupancy map in
	// full: a clear pass over every voxel followed by one stamp per cell.
	//
	// Parameters:
	//   - cells: the new working set, copied; positions must be in bounds and
	//     pairwise distinct (caller invariant)
	SetCells(cells []Cell)

	// Cells returns the dense per-cell record sequence in registry order. The
	// index of a cell in this sequence is stable for a given snapshot and is
	// exactly what occupancy-map values reference.
	//
	// Returns:
	//   - []Cell: the flattened working set (shared snapshot, do not mutate)
	Cells() []Cell

	// Occupancy returns the per-voxel occupancy map: Empty for unoccupied
	// voxels, otherwise the occupying cell's registry index.
	//
	// Returns:
	//   - []int32: the occupancy map (shared snapshot, do not mutate)
	Occupancy() []int32

	// Count returns the number of cells in the working set.
	//
	// Returns:
	//   - int: the cell count
	Count() int
}

var _ Registry = &registry{}

// NewRegistry creates an empty Registry for the given grid dimensions.
//
// Parameters:
//   - dims: the lattice the occupancy map is derived for
//
// Returns:
//   - Registry: a registry with an all-Empty occupancy map
func NewRegistry(dims grid.Dimensions) Registry {
	r := &registry{dims: dims}
	r.SetCells(nil)
	return r
}

func (r *registry) SetCells(cells []Cell) {
	// Replace-whole-resource semantics: fresh slices every rebuild so a
	// snapshot handed out earlier is never mutated underneath its holder.
	next := make([]Cell, len(cells))
	copy(next, cells)

	occ := make([]int32, r.dims.VoxelCount())
	for i := range occ {
		occ[i] = Empty
	}
	for i, c := range next {
		occ[r.dims.ToIndex(c.X, c.Y, c.Z)] = int32(i)
	}

	r.cells = next
	r.occupancy = occ
}

func (r *registry) Cells() []Cell {
	return r.cells
}

func (r *registry) Occupancy() []int32 {
	return r.occupancy
}

func (r *registry) Count() int {
	return len(r.cells)
}
