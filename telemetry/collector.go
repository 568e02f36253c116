package telemetry

import "time"

// Record is one stats-window row of the telemetry CSV.
type Record struct {
	Step        uint64  `csv:"step"`
	StepsPerSec float64 `csv:"steps_per_sec"`
	StepWallMs  float64 `csv:"step_wall_ms"` // mean step wall time in the window
	TotalMass   float64 `csv:"total_mass"`
	Mean        float64 `csv:"mean"`
	Max         float64 `csv:"max"`
	P50         float64 `csv:"p50"`
	P90         float64 `csv:"p90"`
}

// Collector accumulates step timings within fixed-size step windows and
// produces one Record per window from a field snapshot taken at the window
// boundary.
type Collector struct {
	windowSteps int

	step          uint64
	stepsInWindow int
	windowWall    time.Duration
}

// NewCollector creates a stats collector.
// windowSteps: how many steps each stats window spans (minimum 1).
func NewCollector(windowSteps int) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: windowSteps}
}

// RecordStep records one completed step and its wall time.
func (c *Collector) RecordStep(wall time.Duration) {
	c.step++
	c.stepsInWindow++
	c.windowWall += wall
}

// WindowReady reports whether a full window of steps has accumulated.
func (c *Collector) WindowReady() bool {
	return c.stepsInWindow >= c.windowSteps
}

// Flush closes the current window against a field snapshot and resets the
// window counters. Call after WindowReady reports true, with the snapshot
// from the readback that ended the window.
func (c *Collector) Flush(field []float32) Record {
	stats := ComputeFieldStats(field)

	rec := Record{
		Step:      c.step,
		TotalMass: stats.TotalMass,
		Mean:      stats.Mean,
		Max:       stats.Max,
		P50:       stats.P50,
		P90:       stats.P90,
	}
	if c.stepsInWindow > 0 && c.windowWall > 0 {
		rec.StepsPerSec = float64(c.stepsInWindow) / c.windowWall.Seconds()
		rec.StepWallMs = c.windowWall.Seconds() * 1000 / float64(c.stepsInWindow)
	}

	c.stepsInWindow = 0
	c.windowWall = 0
	return rec
}
