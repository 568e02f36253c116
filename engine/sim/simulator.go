// Package sim is the step scheduler and readback pipeline of the diffusion
// engine. It owns the INPUT/OUTPUT/STAGING field resources through an
// execution backend, rotates them across steps, and implements the
// at-most-one-in-flight asynchronous readback protocol.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
	"github.com/Carmen-Shannon/cytosim-go/engine/profiler"
	"github.com/Carmen-Shannon/cytosim-go/engine/stepper"
)

// ErrDisposed is returned by every operation on a disposed Simulator.
// Operating on a disposed engine is a programmer error that fails fast, never
// a silent no-op.
var ErrDisposed = errors.New("sim: simulator is disposed")

// BackendType selects the execution backend a Simulator runs on.
type BackendType int

const (
	// BackendCPU runs the update rule on host memory with a worker pool.
	// This is the default.
	BackendCPU BackendType = iota

	// BackendWGPU runs the update rule as a WebGPU compute shader on a
	// headless device. Construction fails if no adapter or device is
	// available.
	BackendWGPU
)

// simulator is the unexported implementation of Simulator.
type simulator struct {
	mu sync.Mutex

	dims     grid.Dimensions
	registry cell.Registry
	backend  simulatorBackend

	diffusionConstant float32
	deltaTime         float32
	deltaSpace        float32

	// pending is the single-slot in-flight readback. A second ReadResults
	// caller attaches to it instead of starting a new read; the slot is
	// cleared exactly once, after the data has been captured.
	pending *pendingRead

	prof     *profiler.Profiler
	disposed bool
}

// pendingRead is one shared readback result. done is closed after data and
// err are populated; every attached caller then observes the same values.
type pendingRead struct {
	done chan struct{}
	data []float32
	err  error
}

// Simulator is the diffusion engine's external boundary. The caller
// configures grid dimensions and constants at construction, installs cells,
// then repeatedly requests steps and readbacks. The field after N Step calls
// reflects N sequential applications of the update rule; a readback observes
// all steps requested strictly before it.
//
// Step, ReadResults, SetCells and SetConstants are individually safe for
// concurrent use, but a SetCells that races an in-flight Step or readback has
// undefined field semantics; callers must serialize cell updates against
// stepping, as the cell-derived resources are replaced wholesale.
type Simulator interface {
	// Dimensions returns the lattice extents fixed at construction.
	//
	// Returns:
	//   - grid.Dimensions: the grid dimensions
	Dimensions() grid.Dimensions

	// CellCount returns the number of cells in the current registry snapshot.
	//
	// Returns:
	//   - int: the cell count
	CellCount() int

	// Step advances the field by one time step: OUTPUT is cleared, the
	// per-voxel rule runs over the full grid, and OUTPUT is copied back into
	// INPUT for the next step. Steps may be queued back-to-back without an
	// intervening readback.
	//
	// Returns:
	//   - error: ErrDisposed after Dispose, otherwise a backend failure
	Step() error

	// ReadResults retrieves the most recently produced field into host
	// memory. If a read is already pending, the caller attaches to it and
	// receives the identical result rather than starting a second read, so
	// the staging resource is never mapped twice concurrently.
	//
	// Returns:
	//   - []float32: the field snapshot, one value per voxel
	//   - error: ErrDisposed after Dispose, otherwise a backend failure
	ReadResults() ([]float32, error)

	// SetCells replaces the cell set. The occupancy map and flattened cell
	// records are rebuilt in full and the backend's cell-derived resources
	// are replaced wholesale; field contents are untouched. Positions must be
	// in bounds and pairwise distinct (caller invariant).
	//
	// Parameters:
	//   - cells: the new cell set
	//
	// Returns:
	//   - error: ErrDisposed after Dispose, otherwise a backend failure
	SetCells(cells []cell.Cell) error

	// SetConstants installs a new diffusion constant and delta time. The
	// combined constant diffusionConstant*deltaTime/deltaSpace² is recomputed
	// and takes effect on the next Step.
	//
	// Parameters:
	//   - diffusionConstant: must be >= 0
	//   - deltaTime: must be > 0
	//
	// Returns:
	//   - error: ErrDisposed, a validation error, or a backend failure
	SetConstants(diffusionConstant, deltaTime float32) error

	// Dispose releases all resources. Every later call on this instance,
	// including a second Dispose, returns ErrDisposed.
	//
	// Returns:
	//   - error: ErrDisposed if already disposed
	Dispose() error
}

var _ Simulator = &simulator{}

// NewSimulator constructs a diffusion engine for the given grid with the
// given initial concentration distribution. A nil initial field starts at all
// zeros; otherwise its length must equal the voxel count. Constants, cells,
// backend choice and worker count are supplied through builder options.
//
// Parameters:
//   - dims: the lattice extents, all positive
//   - initial: the initial field, nil or exactly dims.VoxelCount() long
//   - options: functional options to further configure the simulator
//
// Returns:
//   - Simulator: the configured engine
//   - error: a configuration error; the engine is never half-built
func NewSimulator(dims grid.Dimensions, initial []float32, options ...SimulatorOption) (Simulator, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	s := &simulator{
		dims:              dims,
		diffusionConstant: defaultDiffusionConstant,
		deltaTime:         defaultDeltaTime,
		deltaSpace:        defaultDeltaSpace,
	}

	cfg := &simulatorConfig{}
	for _, option := range options {
		option(s, cfg)
	}

	if s.diffusionConstant < 0 {
		return nil, fmt.Errorf("sim: diffusion constant must be >= 0, got %v", s.diffusionConstant)
	}
	if s.deltaTime <= 0 {
		return nil, fmt.Errorf("sim: delta time must be > 0, got %v", s.deltaTime)
	}
	if s.deltaSpace <= 0 {
		return nil, fmt.Errorf("sim: delta space must be > 0, got %v", s.deltaSpace)
	}

	if initial == nil {
		initial = make([]float32, dims.VoxelCount())
	} else if len(initial) != dims.VoxelCount() {
		return nil, fmt.Errorf("sim: initial field has %d values, grid has %d voxels", len(initial), dims.VoxelCount())
	}

	s.registry = cell.NewRegistry(dims)
	s.registry.SetCells(cfg.cells)

	p := s.stepParams()
	switch cfg.backendType {
	case BackendWGPU:
		backend, err := newWGPUBackend(dims, initial, s.registry.Cells(), s.registry.Occupancy(), p)
		if err != nil {
			return nil, err
		}
		s.backend = backend
	case BackendCPU:
		s.backend = newCPUBackend(dims, initial, s.registry.Cells(), s.registry.Occupancy(), p, cfg.workerCount())
	default:
		return nil, fmt.Errorf("sim: unknown backend type %d", cfg.backendType)
	}

	if cfg.profiling {
		s.prof = profiler.NewProfiler()
	}

	return s, nil
}

// stepParams folds the three configured constants into the single combined
// multiplier the stencil uses.
func (s *simulator) stepParams() stepper.Params {
	return stepper.Params{
		Combined:  s.diffusionConstant * s.deltaTime / (s.deltaSpace * s.deltaSpace),
		DeltaTime: s.deltaTime,
	}
}

func (s *simulator) Dimensions() grid.Dimensions {
	return s.dims
}

func (s *simulator) CellCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Count()
}

func (s *simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if err := s.backend.Step(); err != nil {
		return err
	}
	if s.prof != nil {
		s.prof.Tick()
	}
	return nil
}

func (s *simulator) ReadResults() ([]float32, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}

	p := s.pending
	if p == nil {
		ticket, err := s.backend.BeginReadback()
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		p = &pendingRead{done: make(chan struct{})}
		s.pending = p
		go func() {
			data, err := ticket.Wait()
			p.data, p.err = data, err

			// Clear the slot exactly once, after the data is captured, so a
			// new read may start from here on.
			s.mu.Lock()
			s.pending = nil
			s.mu.Unlock()

			close(p.done)
		}()
	}
	s.mu.Unlock()

	<-p.done
	return p.data, p.err
}

func (s *simulator) SetCells(cells []cell.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	s.registry.SetCells(cells)
	return s.backend.SetCells(s.registry.Cells(), s.registry.Occupancy())
}

func (s *simulator) SetConstants(diffusionConstant, deltaTime float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if diffusionConstant < 0 {
		return fmt.Errorf("sim: diffusion constant must be >= 0, got %v", diffusionConstant)
	}
	if deltaTime <= 0 {
		return fmt.Errorf("sim: delta time must be > 0, got %v", deltaTime)
	}

	s.diffusionConstant = diffusionConstant
	s.deltaTime = deltaTime
	return s.backend.SetConstants(s.stepParams())
}

func (s *simulator) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	s.disposed = true
	s.backend.Release()
	return nil
}
