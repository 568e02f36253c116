package sim

import (
	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/stepper"
)

// readbackTicket represents one in-flight readback. BeginReadback encodes the
// OUTPUT→STAGING copy at call time, so steps submitted after a ticket is
// issued cannot affect its result; Wait then blocks until all prior work has
// completed and the staging copy is host-visible.
type readbackTicket interface {
	// Wait blocks until the snapshot is available and returns it. Must be
	// called exactly once per ticket.
	//
	// Returns:
	//   - []float32: a host-owned copy of the field, one value per voxel
	//   - error: an error if the device failed or mapping was refused
	Wait() ([]float32, error)
}

// simulatorBackend is the execution side of the scheduler: it owns the INPUT,
// OUTPUT and STAGING field resources and runs the per-voxel update over the
// lattice. Two implementations exist: a host backend parallelized over
// dispatch blocks with a worker pool, and a WebGPU backend running the same
// rule as a compute shader. The Simulator front end serializes all calls, so
// backends never see concurrent invocations of Step, BeginReadback, SetCells
// or SetConstants.
type simulatorBackend interface {
	// Step clears OUTPUT to zero, runs the per-voxel update over the full
	// grid reading INPUT and accumulating into OUTPUT, then copies OUTPUT
	// back into INPUT so the next Step sees the new field. Steps queue
	// back-to-back in submission order.
	//
	// Returns:
	//   - error: an error if the pass could not be submitted
	Step() error

	// BeginReadback encodes the copy of OUTPUT (the most recently produced
	// field) into STAGING and returns a ticket whose Wait yields the
	// host-visible snapshot.
	//
	// Returns:
	//   - readbackTicket: the in-flight readback
	//   - error: an error if the copy could not be submitted
	BeginReadback() (readbackTicket, error)

	// SetCells replaces the cell-derived resources wholesale (occupancy map
	// and flattened cell records) without disturbing the INPUT/OUTPUT field
	// contents.
	//
	// Parameters:
	//   - cells: the flattened cell records in registry order
	//   - occupancy: the per-voxel occupancy map referencing those records
	//
	// Returns:
	//   - error: an error if the replacement resources could not be created
	SetCells(cells []cell.Cell, occupancy []int32) error

	// SetConstants installs new step constants, effective on the next Step.
	//
	// Parameters:
	//   - p: the combined constant and delta time
	//
	// Returns:
	//   - error: an error if the constants could not be uploaded
	SetConstants(p stepper.Params) error

	// Release frees all resources held by the backend. No further calls are
	// valid afterward.
	Release()
}
