// Package client implements the state tracking a renderer needs on top of
// the snapshot stream: local paddle prediction with server reconciliation,
// and interpolation of everything the player does not control. It is the
// reference consumer for browser and bot clients alike.
package client

import (
	"math"
	"time"

	"github.com/playrally/backend/internal/game"
)

// reconcileDecay is how much unacknowledged local movement survives each
// server snapshot. Close to 1 keeps input snappy; the residual drains over a
// few snapshots instead of visibly snapping the paddle back.
const reconcileDecay = 0.95

// RenderState is one drawable frame. Coordinates are rounded to whole pixels
// here and nowhere earlier; all internal tracking stays in float64.
type RenderState struct {
	BallX     int
	BallY     int
	MyPaddleY int
	OppY      int
	Score1    int
	Score2    int
	Status    game.SimStatus
	Winner    int
	Paused    bool
	Sound     string
}

// Predictor tracks the two most recent server snapshots and the local
// player's unacknowledged paddle movement.
type Predictor struct {
	mySlot int

	prev     game.Snapshot
	latest   game.Snapshot
	latestAt time.Time
	interval time.Duration
	count    int

	// offset is local paddle movement the server has not confirmed yet,
	// relative to the latest authoritative position.
	offset float64
}

// NewPredictor builds a predictor for the player in the given slot (1 or 2).
func NewPredictor(mySlot int) *Predictor {
	return &Predictor{mySlot: mySlot}
}

// ApplyLocalInput moves the local paddle immediately, without waiting for
// the server to echo it back. The movement is tracked as an offset against
// the last authoritative position and clamped to the canvas.
func (p *Predictor) ApplyLocalInput(dir game.Direction) {
	switch dir {
	case game.DirUp:
		p.offset -= game.PaddleSpeed
	case game.DirDown:
		p.offset += game.PaddleSpeed
	default:
		return
	}

	p.clampOffset()
}

// ObserveSnapshot ingests an authoritative snapshot. The previous latest
// becomes the interpolation origin. The server's own-paddle movement since
// the last snapshot is subtracted from the unacknowledged offset: confirmed
// movement is already inside the authoritative position, so a correctly
// predicted move nets to zero correction. Only the residual decays.
func (p *Predictor) ObserveSnapshot(snap game.Snapshot, at time.Time) {
	if p.count > 0 {
		confirmedY := p.myServerY()
		p.prev = p.latest
		if d := at.Sub(p.latestAt); d > 0 {
			p.interval = d
		}
		p.latest = snap
		p.offset -= p.myServerY() - confirmedY
	} else {
		p.prev = snap
		p.latest = snap
	}
	p.latestAt = at
	p.count++

	p.offset *= reconcileDecay
	if math.Abs(p.offset) < 0.01 {
		p.offset = 0
	}
	p.clampOffset()
}

// clampOffset keeps the predicted paddle inside the canvas relative to the
// current authoritative base, which shifts with every snapshot.
func (p *Predictor) clampOffset() {
	base := p.myServerY()
	if base+p.offset < 0 {
		p.offset = -base
	}
	if base+p.offset > game.CanvasHeight-game.PaddleHeight {
		p.offset = game.CanvasHeight - game.PaddleHeight - base
	}
}

// Render produces a frame for time now. The opponent paddle and the ball are
// interpolated between the two newest snapshots; the local paddle is the
// latest authoritative position plus the predicted offset.
func (p *Predictor) Render(now time.Time) RenderState {
	t := p.lerpT(now)

	ballX := lerp(p.prev.Ball.X, p.latest.Ball.X, t)
	ballY := lerp(p.prev.Ball.Y, p.latest.Ball.Y, t)

	var oppPrev, oppLatest float64
	if p.mySlot == 1 {
		oppPrev, oppLatest = p.prev.Paddle2.Y, p.latest.Paddle2.Y
	} else {
		oppPrev, oppLatest = p.prev.Paddle1.Y, p.latest.Paddle1.Y
	}

	return RenderState{
		BallX:     round(ballX),
		BallY:     round(ballY),
		MyPaddleY: round(p.myServerY() + p.offset),
		OppY:      round(lerp(oppPrev, oppLatest, t)),
		Score1:    p.latest.Score.P1,
		Score2:    p.latest.Score.P2,
		Status:    p.latest.Status,
		Winner:    p.latest.Winner,
		Paused:    p.latest.Paused,
		Sound:     p.latest.Sound,
	}
}

// Reset drops all tracked state, e.g. across a reconnect where the snapshot
// stream restarts.
func (p *Predictor) Reset() {
	*p = Predictor{mySlot: p.mySlot}
}

// lerpT maps elapsed time since the latest snapshot onto [0, 1] across the
// observed snapshot interval. Before two snapshots exist, or once the stream
// stalls, it pins to the latest authoritative state.
func (p *Predictor) lerpT(now time.Time) float64 {
	if p.count < 2 || p.interval <= 0 {
		return 1
	}
	t := float64(now.Sub(p.latestAt)) / float64(p.interval)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func (p *Predictor) myServerY() float64 {
	if p.mySlot == 1 {
		return p.latest.Paddle1.Y
	}
	return p.latest.Paddle2.Y
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func round(v float64) int {
	return int(math.Round(v))
}
