package grid

import "testing"

func TestDimensionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		dims    Dimensions
		wantErr bool
	}{
		{"valid cube", Dimensions{X: 4, Y: 4, Z: 4}, false},
		{"valid slab", Dimensions{X: 16, Y: 8, Z: 1}, false},
		{"zero x", Dimensions{X: 0, Y: 4, Z: 4}, true},
		{"zero y", Dimensions{X: 4, Y: 0, Z: 4}, true},
		{"zero z", Dimensions{X: 4, Y: 4, Z: 0}, true},
		{"negative", Dimensions{X: -1, Y: 4, Z: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dims.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToIndexFromIndexRoundTrip(t *testing.T) {
	dims := Dimensions{X: 3, Y: 5, Z: 7}

	for z := 0; z < dims.Z; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				idx := dims.ToIndex(x, y, z)
				gx, gy, gz := dims.FromIndex(idx)
				if gx != x || gy != y || gz != z {
					t.Fatalf("FromIndex(ToIndex(%d,%d,%d)) = (%d,%d,%d)", x, y, z, gx, gy, gz)
				}
			}
		}
	}
}

func TestToIndexConvention(t *testing.T) {
	// idx = x + y*X + z*X*Y
	dims := Dimensions{X: 4, Y: 5, Z: 6}

	tests := []struct {
		x, y, z int
		want    int
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 4},
		{0, 0, 1, 20},
		{3, 4, 5, 3 + 4*4 + 5*20},
	}

	for _, tt := range tests {
		if got := dims.ToIndex(tt.x, tt.y, tt.z); got != tt.want {
			t.Errorf("ToIndex(%d,%d,%d) = %d, want %d", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
}

func TestNeighborIndex(t *testing.T) {
	dims := Dimensions{X: 3, Y: 3, Z: 3}
	center := dims.ToIndex(1, 1, 1)

	tests := []struct {
		name string
		axis Axis
		dir  Direction
		want int
	}{
		{"x-", AxisX, Negative, dims.ToIndex(0, 1, 1)},
		{"x+", AxisX, Positive, dims.ToIndex(2, 1, 1)},
		{"y-", AxisY, Negative, dims.ToIndex(1, 0, 1)},
		{"y+", AxisY, Positive, dims.ToIndex(1, 2, 1)},
		{"z-", AxisZ, Negative, dims.ToIndex(1, 1, 0)},
		{"z+", AxisZ, Positive, dims.ToIndex(1, 1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dims.NeighborIndex(center, tt.axis, tt.dir); got != tt.want {
				t.Errorf("NeighborIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNeighborIndexOutOfBounds(t *testing.T) {
	dims := Dimensions{X: 2, Y: 2, Z: 2}

	corners := []struct {
		name string
		idx  int
		axis Axis
		dir  Direction
	}{
		{"origin x-", dims.ToIndex(0, 0, 0), AxisX, Negative},
		{"origin y-", dims.ToIndex(0, 0, 0), AxisY, Negative},
		{"origin z-", dims.ToIndex(0, 0, 0), AxisZ, Negative},
		{"far x+", dims.ToIndex(1, 1, 1), AxisX, Positive},
		{"far y+", dims.ToIndex(1, 1, 1), AxisY, Positive},
		{"far z+", dims.ToIndex(1, 1, 1), AxisZ, Positive},
	}

	for _, tt := range corners {
		t.Run(tt.name, func(t *testing.T) {
			if got := dims.NeighborIndex(tt.idx, tt.axis, tt.dir); got != OutOfBounds {
				t.Errorf("NeighborIndex = %d, want OutOfBounds", got)
			}
		})
	}
}

func TestNeighborIndexNoWraparound(t *testing.T) {
	// A voxel at x=X-1 must not report the voxel at x=0 of the next row as
	// its +x neighbor even though their linear indices are adjacent.
	dims := Dimensions{X: 4, Y: 4, Z: 4}
	edge := dims.ToIndex(3, 0, 0)

	if got := dims.NeighborIndex(edge, AxisX, Positive); got != OutOfBounds {
		t.Errorf("NeighborIndex at +x edge = %d, want OutOfBounds", got)
	}
}

func TestBlockCounts(t *testing.T) {
	tests := []struct {
		name       string
		dims       Dimensions
		bx, by, bz uint32
	}{
		{"exact multiple", Dimensions{X: 16, Y: 8, Z: 24}, 2, 1, 3},
		{"partial blocks", Dimensions{X: 9, Y: 1, Z: 17}, 2, 1, 3},
		{"single block", Dimensions{X: 8, Y: 8, Z: 8}, 1, 1, 1},
		{"tiny grid", Dimensions{X: 1, Y: 1, Z: 1}, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bx, by, bz := tt.dims.BlockCounts()
			if bx != tt.bx || by != tt.by || bz != tt.bz {
				t.Errorf("BlockCounts() = (%d,%d,%d), want (%d,%d,%d)", bx, by, bz, tt.bx, tt.by, tt.bz)
			}
		})
	}
}
