package game

import "time"

// Simulation constants for the rally court.
// These MUST match the constants in the web client's prediction code exactly —
// the same kernel runs on both sides.

const (
	CanvasWidth  = 800.0
	CanvasHeight = 600.0

	PaddleWidth   = 10.0
	PaddleHeight  = 100.0
	PaddleOffsetX = 20.0 // distance of each paddle's near edge from its goal line
	PaddleSpeed   = 6.0  // per tick

	BallSize           = 10.0
	BallLaunchSpeed    = 5.0
	BallSpeedIncrement = 0.5
	BallMaxSpeed       = 12.0
	SpinFactor         = 0.6 // share of speed given to vy on a full-edge paddle hit

	WinScore = 5

	TickRate       = 60 // simulation ticks per second
	BroadcastEvery = 2  // routine snapshots go out every Nth tick
	PauseTicks     = 60 // dead period after a score, in ticks

	TickInterval = time.Second / TickRate
)
