package sim

import (
	"runtime"

	"github.com/Carmen-Shannon/cytosim-go/common"
	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
)

// Construction defaults, overridable through the With* options.
const (
	defaultDiffusionConstant = float32(1.0)
	defaultDeltaTime         = float32(0.1)
	defaultDeltaSpace        = float32(1.0)
)

// simulatorConfig collects construction-only settings that are consumed by
// NewSimulator and not retained on the simulator itself.
type simulatorConfig struct {
	backendType BackendType
	cells       []cell.Cell
	workers     int
	profiling   bool
}

// workerCount resolves the CPU backend's worker count, defaulting to one less
// than the machine's logical CPUs with a floor of one.
func (c *simulatorConfig) workerCount() int {
	return common.Coalesce(c.workers, max(runtime.NumCPU()-1, 1))
}

// SimulatorOption is a functional option used to configure a Simulator during
// construction.
type SimulatorOption func(*simulator, *simulatorConfig)

// WithBackend selects the execution backend.
//
// Parameters:
//   - t: BackendCPU (default) or BackendWGPU
//
// Returns:
//   - SimulatorOption: option function to apply
func WithBackend(t BackendType) SimulatorOption {
	return func(_ *simulator, cfg *simulatorConfig) {
		cfg.backendType = t
	}
}

// WithDiffusionConstant sets the initial diffusion constant.
//
// Parameters:
//   - d: the diffusion constant, must be >= 0
//
// Returns:
//   - SimulatorOption: option function to apply
func WithDiffusionConstant(d float32) SimulatorOption {
	return func(s *simulator, _ *simulatorConfig) {
		s.diffusionConstant = d
	}
}

// WithDeltaTime sets the initial step length in simulation time.
//
// Parameters:
//   - dt: the delta time, must be > 0
//
// Returns:
//   - SimulatorOption: option function to apply
func WithDeltaTime(dt float32) SimulatorOption {
	return func(s *simulator, _ *simulatorConfig) {
		s.deltaTime = dt
	}
}

// WithDeltaSpace sets the lattice spacing used in the combined constant.
// Fixed at 1.0 in practice; exposed for completeness.
//
// Parameters:
//   - ds: the lattice spacing, must be > 0
//
// Returns:
//   - SimulatorOption: option function to apply
func WithDeltaSpace(ds float32) SimulatorOption {
	return func(s *simulator, _ *simulatorConfig) {
		s.deltaSpace = ds
	}
}

// WithCells installs the initial cell list. Positions must be in bounds and
// pairwise distinct (caller invariant, as with SetCells).
//
// Parameters:
//   - cells: the initial cell set
//
// Returns:
//   - SimulatorOption: option function to apply
func WithCells(cells []cell.Cell) SimulatorOption {
	return func(_ *simulator, cfg *simulatorConfig) {
		cfg.cells = cells
	}
}

// WithWorkerCount sets the CPU backend's worker pool size. Values <= 0 use
// the default of one less than the machine's logical CPUs. Ignored by the
// WebGPU backend.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - SimulatorOption: option function to apply
func WithWorkerCount(n int) SimulatorOption {
	return func(_ *simulator, cfg *simulatorConfig) {
		cfg.workers = max(n, 0)
	}
}

// WithProfiling enables step-rate and memory profiling output.
//
// Parameters:
//   - enabled: if true, a profiler ticks on every Step
//
// Returns:
//   - SimulatorOption: option function to apply
func WithProfiling(enabled bool) SimulatorOption {
	return func(_ *simulator, cfg *simulatorConfig) {
		cfg.profiling = enabled
	}
}
