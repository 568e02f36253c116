package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/Carmen-Shannon/cytosim-go/config"
	"github.com/Carmen-Shannon/cytosim-go/engine/sim"
	"github.com/Carmen-Shannon/cytosim-go/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	steps := flag.Int("steps", 1000, "Number of diffusion steps to run")
	backend := flag.String("backend", "", "Execution backend: cpu or wgpu (overrides config)")
	workers := flag.Int("workers", 0, "CPU backend worker count (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot (overrides config)")
	profiling := flag.Bool("profiling", false, "Enable step-rate and memory profiling output")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if *backend != "" {
		cfg.Engine.Backend = *backend
	}
	if *workers > 0 {
		cfg.Engine.Workers = *workers
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *profiling {
		cfg.Engine.Profiling = true
	}

	backendType := sim.BackendCPU
	switch cfg.Engine.Backend {
	case "", "cpu":
	case "wgpu":
		backendType = sim.BackendWGPU
	default:
		log.Printf("unknown backend %q", cfg.Engine.Backend)
		os.Exit(1)
	}

	dims := cfg.Dimensions()
	opts := []sim.SimulatorOption{
		sim.WithBackend(backendType),
		sim.WithDiffusionConstant(float32(cfg.Simulation.DiffusionConstant)),
		sim.WithDeltaTime(float32(cfg.Simulation.DeltaTime)),
		sim.WithDeltaSpace(float32(cfg.Simulation.DeltaSpace)),
		sim.WithCells(cfg.CellList()),
		sim.WithProfiling(cfg.Engine.Profiling),
	}
	if cfg.Engine.Workers > 0 {
		opts = append(opts, sim.WithWorkerCount(cfg.Engine.Workers))
	}

	simulator, err := sim.NewSimulator(dims, nil, opts...)
	if err != nil {
		log.Printf("failed to create simulator: %v", err)
		os.Exit(1)
	}
	defer simulator.Dispose()

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		log.Printf("failed to initialize output: %v", err)
		os.Exit(1)
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		log.Printf("failed to write config snapshot: %v", err)
		os.Exit(1)
	}

	windowSteps := cfg.Telemetry.WindowSteps
	if windowSteps < 1 {
		windowSteps = 1
	}
	collector := telemetry.NewCollector(windowSteps)

	log.Printf("starting simulation: grid=%dx%dx%d cells=%d backend=%s steps=%d",
		dims.X, dims.Y, dims.Z, simulator.CellCount(), cfg.Engine.Backend, *steps)

	start := time.Now()
	for i := 0; i < *steps; i++ {
		stepStart := time.Now()
		if err := simulator.Step(); err != nil {
			log.Printf("step %d failed: %v", i, err)
			os.Exit(1)
		}
		collector.RecordStep(time.Since(stepStart))

		if collector.WindowReady() {
			field, err := simulator.ReadResults()
			if err != nil {
				log.Printf("readback after step %d failed: %v", i, err)
				os.Exit(1)
			}
			rec := collector.Flush(field)
			if om != nil {
				if err := om.WriteRecord(rec); err != nil {
					log.Printf("failed to write stats: %v", err)
					os.Exit(1)
				}
			}
		}
	}
	elapsed := time.Since(start)

	field, err := simulator.ReadResults()
	if err != nil {
		log.Printf("final readback failed: %v", err)
		os.Exit(1)
	}
	stats := telemetry.ComputeFieldStats(field)

	log.Printf("finished %d steps in %v (%.1f steps/s)", *steps, elapsed.Round(time.Millisecond), float64(*steps)/elapsed.Seconds())
	log.Printf("final field: total_mass=%.4f mean=%.6f max=%.6f p50=%.6f p90=%.6f",
		stats.TotalMass, stats.Mean, stats.Max, stats.P50, stats.P90)
	if om != nil {
		log.Printf("telemetry written to %s", om.Dir())
	}
}
