// Package engine provides the frame-based game loop and the simulation
// aggregate that runs the per-frame pipeline.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward at a fixed frame step.
type Engine struct {
	Frame   uint64  // Current frame counter (monotonic, never resets)
	FrameDT float64 // Game seconds per frame

	speed   atomic.Uint64 // float64 bits; 1.0 = real-time, 0 = halted
	running atomic.Bool

	// Callbacks for each layer, populated during setup.
	OnFrame  func(frame uint64, dt float64) // Every frame
	OnSecond func(frame uint64)             // Every game second
}

// NewEngine creates an engine stepping dt seconds per frame.
func NewEngine(dt float64) *Engine {
	e := &Engine{FrameDT: dt}
	e.SetSpeed(1)
	return e
}

// Speed returns the time multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the time multiplier. Zero halts the loop without
// stopping it.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// FramesPerSecond returns how many frames make one game second.
func (e *Engine) FramesPerSecond() uint64 {
	fps := uint64(math.Round(1 / e.FrameDT))
	if fps == 0 {
		return 1
	}
	return fps
}

// Run starts the loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("game engine started", "frame", e.Frame, "speed", e.Speed(), "dt", e.FrameDT)

	interval := time.Duration(e.FrameDT * float64(time.Second))
	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the frame, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("game engine stopped", "frame", e.Frame)
}

// Stop halts the loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the game by one frame.
func (e *Engine) step() {
	e.Frame++

	if e.OnFrame != nil {
		e.OnFrame(e.Frame, e.FrameDT)
	}

	if e.Frame%e.FramesPerSecond() == 0 && e.OnSecond != nil {
		e.OnSecond(e.Frame)
	}
}

// Advance runs n frames back to back without sleeping.
func (e *Engine) Advance(n int) {
	for range n {
		e.step()
	}
}
