package sim

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
	"github.com/Carmen-Shannon/cytosim-go/engine/stepper"
)

// cpuBackendImpl runs the per-voxel update on host memory, parallelized over
// grid.BlockSize³ dispatch blocks with a bounded worker pool. Workers persist
// across steps, avoiding per-step goroutine spawn/teardown overhead. The
// gather-style kernel writes only its own voxel's output slot, so blocks never
// race on the output field.
type cpuBackendImpl struct {
	mu   *sync.Mutex
	dims grid.Dimensions

	// in and out are the INPUT and OUTPUT fields. out is cleared at the start
	// of every pass and copied back into in after the pass, matching the
	// device backend's buffer rotation exactly.
	in, out []float32

	// Cell-derived state, replaced wholesale by SetCells.
	cells     []cell.Cell
	occupancy []int32

	params stepper.Params

	pool worker.DynamicWorkerPool
}

var _ simulatorBackend = &cpuBackendImpl{}

// newCPUBackend creates a host backend with the given initial field. The
// initial slice is copied; the backend owns its buffers exclusively.
func newCPUBackend(dims grid.Dimensions, initial []float32, cells []cell.Cell, occupancy []int32, p stepper.Params, workers int) *cpuBackendImpl {
	b := &cpuBackendImpl{
		mu:        &sync.Mutex{},
		dims:      dims,
		in:        make([]float32, dims.VoxelCount()),
		out:       make([]float32, dims.VoxelCount()),
		cells:     cells,
		occupancy: occupancy,
		params:    p,
	}
	copy(b.in, initial)

	// Queue size covers the block count of typical grids with headroom;
	// overflow submissions block until a worker frees a slot, which is
	// acceptable barrier behavior for a step pass.
	b.pool = worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
	return b
}

func (b *cpuBackendImpl) Step() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.out {
		b.out[i] = 0
	}

	// One task per dispatch block. A WaitGroup provides the per-pass barrier;
	// the pool's workers are reused across passes.
	var wg sync.WaitGroup
	taskID := 0
	for z := 0; z < b.dims.Z; z += grid.BlockSize {
		for y := 0; y < b.dims.Y; y += grid.BlockSize {
			for x := 0; x < b.dims.X; x += grid.BlockSize {
				wg.Add(1)
				x0, y0, z0 := x, y, z
				id := taskID
				taskID++
				b.pool.SubmitTask(worker.Task{
					ID: id,
					Do: func() (any, error) {
						defer wg.Done()
						stepper.StepBlock(b.dims, x0, y0, z0, b.in, b.out, b.occupancy, b.cells, b.params)
						return nil, nil
					},
				})
			}
		}
	}
	wg.Wait()

	copy(b.in, b.out)
	return nil
}

func (b *cpuBackendImpl) BeginReadback() (readbackTicket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The host pass is synchronous, so all prior steps have already executed;
	// snapshotting OUTPUT here is the STAGING copy.
	snapshot := make([]float32, len(b.out))
	copy(snapshot, b.out)
	return &cpuReadbackTicket{data: snapshot}, nil
}

func (b *cpuBackendImpl) SetCells(cells []cell.Cell, occupancy []int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cells = cells
	b.occupancy = occupancy
	return nil
}

func (b *cpuBackendImpl) SetConstants(p stepper.Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.params = p
	return nil
}

func (b *cpuBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.in = nil
	b.out = nil
	b.cells = nil
	b.occupancy = nil
}

// cpuReadbackTicket carries an already-materialized snapshot; Wait has nothing
// left to wait for.
type cpuReadbackTicket struct {
	data []float32
}

func (t *cpuReadbackTicket) Wait() ([]float32, error) {
	return t.data, nil
}
