package stepper

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
)

const eps = 1e-5

func newField(dims grid.Dimensions, value float32) []float32 {
	f := make([]float32, dims.VoxelCount())
	for i := range f {
		f[i] = value
	}
	return f
}

func runStep(dims grid.Dimensions, in []float32, cells []cell.Cell, p Params) []float32 {
	r := cell.NewRegistry(dims)
	r.SetCells(cells)
	out := make([]float32, dims.VoxelCount())
	Step(dims, in, out, r.Occupancy(), r.Cells(), p)
	return out
}

func TestZeroCombinedNoCellsIsIdentity(t *testing.T) {
	dims := grid.Dimensions{X: 4, Y: 4, Z: 4}
	in := make([]float32, dims.VoxelCount())
	for i := range in {
		in[i] = float32(i) * 0.25
	}

	out := runStep(dims, in, nil, Params{Combined: 0, DeltaTime: 0.1})

	for i := range out {
		if out[i] != in[i] {
			t.Fatalf("voxel %d changed: %v -> %v", i, in[i], out[i])
		}
	}
}

func TestUniformFieldIsSteadyState(t *testing.T) {
	// With no cells, interior voxels of a uniform field have sum equal to
	// 6*self and stay put. Boundary voxels count out-of-bounds faces as open
	// while receiving 0 from them, so edges leak and decay.
	dims := grid.Dimensions{X: 5, Y: 5, Z: 5}
	in := newField(dims, 2.0)
	p := Params{Combined: 0.05, DeltaTime: 0.1}

	out := runStep(dims, in, nil, p)

	interior := dims.ToIndex(2, 2, 2)
	if math.Abs(float64(out[interior]-2.0)) > eps {
		t.Errorf("interior voxel = %v, want 2.0", out[interior])
	}

	// Corner voxel has three out-of-bounds faces, each contributing 0 to the
	// neighbor sum while still counting as open: out = in + k*(3*in - 6*in).
	corner := dims.ToIndex(0, 0, 0)
	want := 2.0 + 0.05*(3*2.0-6*2.0)
	if math.Abs(float64(out[corner])-want) > eps {
		t.Errorf("corner voxel = %v, want %v", out[corner], want)
	}
}

func TestInteriorClosedFormDelta(t *testing.T) {
	dims := grid.Dimensions{X: 5, Y: 5, Z: 5}
	in := make([]float32, dims.VoxelCount())
	center := dims.ToIndex(2, 2, 2)
	in[center] = 10.0

	k := float32(0.02)
	out := runStep(dims, in, nil, Params{Combined: k, DeltaTime: 0.1})

	// Center: out = in + k*(0 - 6*in)
	wantCenter := 10.0 * (1.0 - 6.0*float64(k))
	if math.Abs(float64(out[center])-wantCenter) > eps {
		t.Errorf("center = %v, want %v", out[center], wantCenter)
	}

	// Each face neighbor: out = 0 + k*(10 - 0)
	wantFace := float64(k) * 10.0
	for axis := grid.AxisX; axis <= grid.AxisZ; axis++ {
		for _, dir := range [2]grid.Direction{grid.Negative, grid.Positive} {
			n := dims.NeighborIndex(center, axis, dir)
			if math.Abs(float64(out[n])-wantFace) > eps {
				t.Errorf("face neighbor %d = %v, want %v", n, out[n], wantFace)
			}
		}
	}

	// Diagonal neighbor receives nothing from a single step of a face stencil.
	diag := dims.ToIndex(3, 3, 2)
	if out[diag] != 0 {
		t.Errorf("diagonal neighbor = %v, want 0", out[diag])
	}
}

func TestOccupiedVoxelOutputIsZero(t *testing.T) {
	dims := grid.Dimensions{X: 3, Y: 3, Z: 3}
	in := newField(dims, 5.0)
	cells := []cell.Cell{{X: 1, Y: 1, Z: 1, ProductionRate: 3.0}}

	out := runStep(dims, in, cells, Params{Combined: 0.05, DeltaTime: 0.1})

	if got := out[dims.ToIndex(1, 1, 1)]; got != 0 {
		t.Errorf("occupied voxel output = %v, want 0", got)
	}
}

func TestProductionDistributedEvenly(t *testing.T) {
	// A single interior cell with six empty neighbors sends each neighbor
	// exactly rate*dt/6.
	dims := grid.Dimensions{X: 5, Y: 5, Z: 5}
	in := make([]float32, dims.VoxelCount())
	rate := float32(6.0)
	dt := float32(1.0)
	cells := []cell.Cell{{X: 2, Y: 2, Z: 2, ProductionRate: rate}}

	out := runStep(dims, in, cells, Params{Combined: 0, DeltaTime: dt})

	center := dims.ToIndex(2, 2, 2)
	want := float64(rate * dt / 6.0)
	for axis := grid.AxisX; axis <= grid.AxisZ; axis++ {
		for _, dir := range [2]grid.Direction{grid.Negative, grid.Positive} {
			n := dims.NeighborIndex(center, axis, dir)
			if math.Abs(float64(out[n])-want) > eps {
				t.Errorf("neighbor %d = %v, want %v", n, out[n], want)
			}
		}
	}

	// Total injected mass is exactly rate*dt.
	var total float64
	for _, v := range out {
		total += float64(v)
	}
	if math.Abs(total-float64(rate*dt)) > eps {
		t.Errorf("total mass = %v, want %v", total, rate*dt)
	}
}

func TestOpenNeighborsCountsOnlyInBoundsOccupied(t *testing.T) {
	dims := grid.Dimensions{X: 4, Y: 4, Z: 4}

	tests := []struct {
		name  string
		cells []cell.Cell
		at    int // index into cells of the voxel under test
		want  int
	}{
		{
			"interior no occupied neighbors",
			[]cell.Cell{{X: 2, Y: 2, Z: 2, ProductionRate: 1}},
			0, 6,
		},
		{
			// Three faces out of bounds but still counted as open.
			"corner no occupied neighbors",
			[]cell.Cell{{X: 0, Y: 0, Z: 0, ProductionRate: 1}},
			0, 6,
		},
		{
			"one occupied neighbor",
			[]cell.Cell{
				{X: 2, Y: 2, Z: 2, ProductionRate: 1},
				{X: 3, Y: 2, Z: 2, ProductionRate: 1},
			},
			0, 5,
		},
		{
			"corner with occupied neighbor",
			[]cell.Cell{
				{X: 0, Y: 0, Z: 0, ProductionRate: 1},
				{X: 1, Y: 0, Z: 0, ProductionRate: 1},
			},
			0, 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cell.NewRegistry(dims)
			r.SetCells(tt.cells)
			c := tt.cells[tt.at]
			idx := dims.ToIndex(c.X, c.Y, c.Z)
			if got := OpenNeighbors(dims, r.Occupancy(), idx); got != tt.want {
				t.Errorf("OpenNeighbors = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFullyEnclosedCellProducesNothing(t *testing.T) {
	// A cell whose six in-bounds neighbors are all occupied has zero open
	// directions and must skip production entirely rather than divide by zero.
	dims := grid.Dimensions{X: 5, Y: 5, Z: 5}
	cells := []cell.Cell{
		{X: 2, Y: 2, Z: 2, ProductionRate: 100.0},
		{X: 1, Y: 2, Z: 2, ProductionRate: 0},
		{X: 3, Y: 2, Z: 2, ProductionRate: 0},
		{X: 2, Y: 1, Z: 2, ProductionRate: 0},
		{X: 2, Y: 3, Z: 2, ProductionRate: 0},
		{X: 2, Y: 2, Z: 1, ProductionRate: 0},
		{X: 2, Y: 2, Z: 3, ProductionRate: 0},
	}
	in := make([]float32, dims.VoxelCount())

	out := runStep(dims, in, cells, Params{Combined: 0, DeltaTime: 1.0})

	for i, v := range out {
		if v != 0 {
			t.Fatalf("voxel %d = %v, want 0 (enclosed cell must not produce)", i, v)
		}
	}
}

func TestCornerCellProductionShares(t *testing.T) {
	// A corner cell has three in-bounds empty neighbors but OpenNeighbors
	// still reports 6, so each receiving neighbor gets rate*dt/6 and half the
	// production is lost off-grid.
	dims := grid.Dimensions{X: 3, Y: 3, Z: 3}
	rate := float32(6.0)
	cells := []cell.Cell{{X: 0, Y: 0, Z: 0, ProductionRate: rate}}
	in := make([]float32, dims.VoxelCount())

	out := runStep(dims, in, cells, Params{Combined: 0, DeltaTime: 1.0})

	want := float64(rate) / 6.0
	for _, n := range []int{
		dims.ToIndex(1, 0, 0),
		dims.ToIndex(0, 1, 0),
		dims.ToIndex(0, 0, 1),
	} {
		if math.Abs(float64(out[n])-want) > eps {
			t.Errorf("neighbor %d = %v, want %v", n, out[n], want)
		}
	}

	var total float64
	for _, v := range out {
		total += float64(v)
	}
	if math.Abs(total-float64(rate)/2.0) > eps {
		t.Errorf("total mass = %v, want %v", total, rate/2.0)
	}
}

func TestOccupiedNeighborExcludedFromLaplacian(t *testing.T) {
	// An empty voxel next to an occupied one neither reads the occupied
	// voxel's field value nor counts it as open.
	dims := grid.Dimensions{X: 5, Y: 5, Z: 5}
	in := newField(dims, 1.0)
	in[dims.ToIndex(2, 2, 2)] = 50.0 // value under the cell must be ignored
	cells := []cell.Cell{{X: 2, Y: 2, Z: 2, ProductionRate: 0}}

	k := float32(0.05)
	out := runStep(dims, in, cells, Params{Combined: k, DeltaTime: 0.1})

	// Voxel (3,2,2): five open empty neighbors each holding 1.0, self 1.0.
	// out = 1 + k*(5*1 - 5*1) = 1, with zero production arriving.
	probe := dims.ToIndex(3, 2, 2)
	if math.Abs(float64(out[probe])-1.0) > eps {
		t.Errorf("voxel next to cell = %v, want 1.0", out[probe])
	}
}

func TestStepBlockCoversWholeGridOnce(t *testing.T) {
	// Stepping block by block with clamped partial blocks must produce the
	// same field as the serial whole-grid reference.
	dims := grid.Dimensions{X: 11, Y: 9, Z: 10}
	in := make([]float32, dims.VoxelCount())
	for i := range in {
		in[i] = float32(i%17) * 0.3
	}
	cells := []cell.Cell{
		{X: 0, Y: 0, Z: 0, ProductionRate: 2.0},
		{X: 10, Y: 8, Z: 9, ProductionRate: 1.5},
		{X: 5, Y: 4, Z: 5, ProductionRate: 0.7},
	}
	r := cell.NewRegistry(dims)
	r.SetCells(cells)
	p := Params{Combined: 0.04, DeltaTime: 0.1}

	want := make([]float32, dims.VoxelCount())
	Step(dims, in, want, r.Occupancy(), r.Cells(), p)

	got := make([]float32, dims.VoxelCount())
	for z0 := 0; z0 < dims.Z; z0 += grid.BlockSize {
		for y0 := 0; y0 < dims.Y; y0 += grid.BlockSize {
			for x0 := 0; x0 < dims.X; x0 += grid.BlockSize {
				StepBlock(dims, x0, y0, z0, in, got, r.Occupancy(), r.Cells(), p)
			}
		}
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("voxel %d: block-wise %v != serial %v", i, got[i], want[i])
		}
	}
}
