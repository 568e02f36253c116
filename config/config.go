// Package config provides configuration loading and access for the diffusion
// engine and its headless runner.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid       GridConfig       `yaml:"grid"`
	Simulation SimulationConfig `yaml:"simulation"`
	Engine     EngineConfig     `yaml:"engine"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Cells      []CellConfig     `yaml:"cells"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the lattice extents. All three must be positive.
type GridConfig struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// SimulationConfig holds the numerical constants of the diffusion step.
type SimulationConfig struct {
	DiffusionConstant float64 `yaml:"diffusion_constant"` // Must be >= 0
	DeltaTime         float64 `yaml:"delta_time"`         // Step length, must be > 0
	DeltaSpace        float64 `yaml:"delta_space"`        // Lattice spacing, must be > 0 (1.0 in practice)
}

// EngineConfig holds execution settings.
type EngineConfig struct {
	Backend   string `yaml:"backend"`   // "cpu" or "wgpu"
	Workers   int    `yaml:"workers"`   // CPU backend worker count (0 = logical CPUs - 1)
	Profiling bool   `yaml:"profiling"` // Step-rate/memory profiling output
}

// TelemetryConfig holds telemetry output settings.
type TelemetryConfig struct {
	OutputDir   string `yaml:"output_dir"`   // Empty disables CSV output
	WindowSteps int    `yaml:"window_steps"` // Steps per stats window
}

// CellConfig describes one cell placement: voxel coordinate and production
// rate.
type CellConfig struct {
	X              int     `yaml:"x"`
	Y              int     `yaml:"y"`
	Z              int     `yaml:"z"`
	ProductionRate float64 `yaml:"production_rate"`
}

// DerivedConfig holds values derived from loaded config.
type DerivedConfig struct {
	Combined   float32 // diffusion_constant * delta_time / delta_space²
	VoxelCount int
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. The merged configuration
// is validated before derived values are computed; the engine's own looser
// caller invariants (the cell registry does not validate placements) are
// enforced here instead, so a config-driven run can never install overlapping
// or out-of-range cells.
//
// Parameters:
//   - path: optional user config path
//
// Returns:
//   - *Config: the merged, validated configuration
//   - error: a read, parse, or validation error
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
//
// Returns:
//   - error: the first violation found, or nil
func (c *Config) Validate() error {
	dims := c.Dimensions()
	if err := dims.Validate(); err != nil {
		return err
	}
	if c.Simulation.DiffusionConstant < 0 {
		return fmt.Errorf("config: diffusion_constant must be >= 0, got %v", c.Simulation.DiffusionConstant)
	}
	if c.Simulation.DeltaTime <= 0 {
		return fmt.Errorf("config: delta_time must be > 0, got %v", c.Simulation.DeltaTime)
	}
	if c.Simulation.DeltaSpace <= 0 {
		return fmt.Errorf("config: delta_space must be > 0, got %v", c.Simulation.DeltaSpace)
	}
	switch c.Engine.Backend {
	case "", "cpu", "wgpu":
	default:
		return fmt.Errorf("config: unknown backend %q (want cpu or wgpu)", c.Engine.Backend)
	}
	if c.Telemetry.WindowSteps < 0 {
		return fmt.Errorf("config: window_steps must be >= 0, got %d", c.Telemetry.WindowSteps)
	}

	seen := make(map[int]int, len(c.Cells))
	for i, cc := range c.Cells {
		if !dims.Contains(cc.X, cc.Y, cc.Z) {
			return fmt.Errorf("config: cell %d at (%d,%d,%d) is outside the %dx%dx%d grid", i, cc.X, cc.Y, cc.Z, dims.X, dims.Y, dims.Z)
		}
		if cc.ProductionRate < 0 {
			return fmt.Errorf("config: cell %d production_rate must be >= 0, got %v", i, cc.ProductionRate)
		}
		idx := dims.ToIndex(cc.X, cc.Y, cc.Z)
		if prev, ok := seen[idx]; ok {
			return fmt.Errorf("config: cells %d and %d both occupy voxel (%d,%d,%d)", prev, i, cc.X, cc.Y, cc.Z)
		}
		seen[idx] = i
	}

	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	ds := c.Simulation.DeltaSpace
	c.Derived.Combined = float32(c.Simulation.DiffusionConstant * c.Simulation.DeltaTime / (ds * ds))
	c.Derived.VoxelCount = c.Dimensions().VoxelCount()
}

// WriteYAML saves the configuration to a YAML file.
//
// Parameters:
//   - path: destination file path
//
// Returns:
//   - error: a marshal or write error
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Dimensions returns the configured lattice extents.
//
// Returns:
//   - grid.Dimensions: the grid dimensions
func (c *Config) Dimensions() grid.Dimensions {
	return grid.Dimensions{X: c.Grid.X, Y: c.Grid.Y, Z: c.Grid.Z}
}

// CellList converts the configured cell placements into engine cell records.
//
// Returns:
//   - []cell.Cell: the cell list in config order
func (c *Config) CellList() []cell.Cell {
	cells := make([]cell.Cell, len(c.Cells))
	for i, cc := range c.Cells {
		cells[i] = cell.Cell{
			X:              cc.X,
			Y:              cc.Y,
			Z:              cc.Z,
			ProductionRate: float32(cc.ProductionRate),
		}
	}
	return cells
}
