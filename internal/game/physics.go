package game

import "math"

// SimStatus is the status of a simulation.
type SimStatus string

const (
	SimPlaying  SimStatus = "playing"
	SimFinished SimStatus = "finished"
)

// Ball is the ball's physics state.
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// SimState is the full simulation state of one match. The authoritative copy
// lives on the server session; each client's predictor owns a structurally
// identical copy and advances it with the same functions. Everything here is
// plain value math: no I/O, no clock, no randomness. Launch angle and
// direction are passed in by the caller, which is what keeps repeated runs
// bit-for-bit identical.
type SimState struct {
	Ball       Ball
	Paddle1Y   float64
	Paddle2Y   float64
	Score1     int
	Score2     int
	Status     SimStatus
	Winner     int // 0 = none, 1 or 2 = player slot
	Paused     bool
	PauseTicks int // server-internal, stripped from snapshots

	// Sound is the transient last-tick event tag ("wall", "paddle",
	// "score"). The tick loop clears it every tick.
	Sound string
}

// StepResult reports what happened during one StepBall call.
type StepResult struct {
	Scored int // 0 = nobody, otherwise the slot that scored
	Sound  string
}

// NewSimState returns a fresh state: paddles and ball centered, no velocity,
// zero score.
func NewSimState() *SimState {
	return &SimState{
		Ball: Ball{
			X: (CanvasWidth - BallSize) / 2,
			Y: (CanvasHeight - BallSize) / 2,
		},
		Paddle1Y: (CanvasHeight - PaddleHeight) / 2,
		Paddle2Y: (CanvasHeight - PaddleHeight) / 2,
		Status:   SimPlaying,
	}
}

// ApplyInput moves the named paddle one tick's worth toward dir, clamped to
// the canvas. Legal while paused — players may reposition during the dead
// period. DirStop is a no-op.
func ApplyInput(s *SimState, slot int, dir Direction) {
	var y *float64
	switch slot {
	case 1:
		y = &s.Paddle1Y
	case 2:
		y = &s.Paddle2Y
	default:
		return
	}

	switch dir {
	case DirUp:
		*y -= PaddleSpeed
	case DirDown:
		*y += PaddleSpeed
	default:
		return
	}

	if *y < 0 {
		*y = 0
	}
	if *y > CanvasHeight-PaddleHeight {
		*y = CanvasHeight - PaddleHeight
	}
}

// LaunchBall sets the ball's velocity from a launch angle and horizontal
// direction (+1 toward player 2, -1 toward player 1). The caller owns the
// randomness; given the same angle and direction the kernel is reproducible.
func LaunchBall(s *SimState, angle float64, dir int) {
	s.Ball.VX = math.Cos(angle) * BallLaunchSpeed * float64(dir)
	s.Ball.VY = math.Sin(angle) * BallLaunchSpeed
}

// StepBall advances the ball exactly one tick. Movement is decomposed into
// sub-steps small enough that a single sub-step can never carry the ball
// through a paddle undetected: N = ceil(speed / (paddleWidth/2)), so each
// sub-step's displacement is at most half a paddle width.
func StepBall(s *SimState) StepResult {
	var res StepResult

	speed := math.Hypot(s.Ball.VX, s.Ball.VY)
	if speed == 0 {
		return res
	}

	n := int(math.Ceil(speed / (PaddleWidth / 2)))
	if n < 1 {
		n = 1
	}

	for i := 0; i < n; i++ {
		prevX := s.Ball.X
		prevY := s.Ball.Y
		s.Ball.X += s.Ball.VX / float64(n)
		s.Ball.Y += s.Ball.VY / float64(n)

		// Top/bottom walls: reflect the overshoot back in rather than
		// clamping, so travel distance within the sub-step is preserved.
		if s.Ball.Y < 0 {
			s.Ball.Y = -s.Ball.Y
			s.Ball.VY = -s.Ball.VY
			res.Sound = "wall"
		} else if s.Ball.Y > CanvasHeight-BallSize {
			s.Ball.Y = 2*(CanvasHeight-BallSize) - s.Ball.Y
			s.Ball.VY = -s.Ball.VY
			res.Sound = "wall"
		}

		if hitPaddle(s, prevX, prevY) {
			res.Sound = "paddle"
			break // one collision per tick; remaining sub-steps are skipped
		}

		// Scoring: the ball must be fully beyond the goal line.
		if s.Ball.X+BallSize < 0 {
			res.Scored = 2
			res.Sound = "score"
			break
		}
		if s.Ball.X > CanvasWidth {
			res.Scored = 1
			res.Sound = "score"
			break
		}
	}

	s.Sound = res.Sound
	return res
}

// hitPaddle runs the swept collision test for both paddles against the
// sub-step from (prevX, prevY) to the ball's current position, resolving the
// first hit found. Returns true if a collision was resolved.
func hitPaddle(s *SimState, prevX, prevY float64) bool {
	leftFace := PaddleOffsetX + PaddleWidth
	rightFace := CanvasWidth - PaddleOffsetX - PaddleWidth

	// Left paddle: the ball's leading edge is its left side.
	if s.Ball.VX < 0 {
		if prevX >= leftFace && s.Ball.X < leftFace {
			t := (prevX - leftFace) / (prevX - s.Ball.X)
			crossY := prevY + (s.Ball.Y-prevY)*t
			if crossY+BallSize >= s.Paddle1Y && crossY <= s.Paddle1Y+PaddleHeight {
				resolvePaddleHit(s, 1, crossY)
				return true
			}
		}
		// Fallback plain-overlap test for a ball already inside the zone.
		if s.Ball.X < leftFace && s.Ball.X+BallSize > PaddleOffsetX &&
			s.Ball.Y+BallSize >= s.Paddle1Y && s.Ball.Y <= s.Paddle1Y+PaddleHeight {
			resolvePaddleHit(s, 1, s.Ball.Y)
			return true
		}
	}

	// Right paddle: the leading edge is the ball's right side.
	if s.Ball.VX > 0 {
		prevLead := prevX + BallSize
		lead := s.Ball.X + BallSize
		if prevLead <= rightFace && lead > rightFace {
			t := (rightFace - prevLead) / (lead - prevLead)
			crossY := prevY + (s.Ball.Y-prevY)*t
			if crossY+BallSize >= s.Paddle2Y && crossY <= s.Paddle2Y+PaddleHeight {
				resolvePaddleHit(s, 2, crossY)
				return true
			}
		}
		if lead > rightFace && s.Ball.X < CanvasWidth-PaddleOffsetX &&
			s.Ball.Y+BallSize >= s.Paddle2Y && s.Ball.Y <= s.Paddle2Y+PaddleHeight {
			resolvePaddleHit(s, 2, s.Ball.Y)
			return true
		}
	}

	return false
}

// resolvePaddleHit bumps the speed, reverses horizontal travel, repositions
// the ball flush against the paddle face, and sets the vertical velocity from
// where on the paddle the ball struck — hits near an edge send it off steeply.
func resolvePaddleHit(s *SimState, slot int, crossY float64) {
	newSpeed := math.Hypot(s.Ball.VX, s.Ball.VY) + BallSpeedIncrement
	if newSpeed > BallMaxSpeed {
		newSpeed = BallMaxSpeed
	}

	var paddleY float64
	if slot == 1 {
		paddleY = s.Paddle1Y
	} else {
		paddleY = s.Paddle2Y
	}

	offset := ((crossY + BallSize/2) - (paddleY + PaddleHeight/2)) / (PaddleHeight / 2)
	if offset > 1 {
		offset = 1
	}
	if offset < -1 {
		offset = -1
	}

	s.Ball.VY = offset * newSpeed * SpinFactor
	vx := math.Sqrt(newSpeed*newSpeed - s.Ball.VY*s.Ball.VY)

	if slot == 1 {
		s.Ball.VX = vx
		s.Ball.X = PaddleOffsetX + PaddleWidth
	} else {
		s.Ball.VX = -vx
		s.Ball.X = CanvasWidth - PaddleOffsetX - PaddleWidth - BallSize
	}
	s.Ball.Y = crossY
}

// ResetBallAfterScore centers a dead ball and starts the post-score pause.
func ResetBallAfterScore(s *SimState) {
	s.Ball.X = (CanvasWidth - BallSize) / 2
	s.Ball.Y = (CanvasHeight - BallSize) / 2
	s.Ball.VX = 0
	s.Ball.VY = 0
	s.Paused = true
	s.PauseTicks = PauseTicks
}

// TickPause decrements the pause countdown. It returns true exactly once per
// pause period — on the tick the countdown reaches zero — signaling the
// caller to relaunch the ball with fresh parameters.
func TickPause(s *SimState) bool {
	if !s.Paused {
		return false
	}
	s.PauseTicks--
	if s.PauseTicks <= 0 {
		s.Paused = false
		s.PauseTicks = 0
		return true
	}
	return false
}

// Snapshot is the wire/render projection of a SimState. Numeric fields stay
// real numbers; rounding to pixels is the renderer's concern.
type Snapshot struct {
	Ball    Ball           `json:"ball"`
	Paddle1 PaddleSnapshot `json:"paddle1"`
	Paddle2 PaddleSnapshot `json:"paddle2"`
	Score   ScoreSnapshot  `json:"score"`
	Status  SimStatus      `json:"status"`
	Winner  int            `json:"winner,omitempty"`
	Paused  bool           `json:"paused"`
	Sound   string         `json:"sound,omitempty"`
}

type PaddleSnapshot struct {
	Y float64 `json:"y"`
}

type ScoreSnapshot struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// SerializeState produces the snapshot sent to clients, omitting
// internal-only fields (PauseTicks).
func SerializeState(s *SimState) Snapshot {
	return Snapshot{
		Ball:    s.Ball,
		Paddle1: PaddleSnapshot{Y: s.Paddle1Y},
		Paddle2: PaddleSnapshot{Y: s.Paddle2Y},
		Score:   ScoreSnapshot{P1: s.Score1, P2: s.Score2},
		Status:  s.Status,
		Winner:  s.Winner,
		Paused:  s.Paused,
		Sound:   s.Sound,
	}
}
