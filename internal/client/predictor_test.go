package client

import (
	"testing"
	"time"

	"github.com/playrally/backend/internal/game"
)

func snapshotAt(ballX, ballY, p1Y, p2Y float64) game.Snapshot {
	return game.Snapshot{
		Ball:    game.Ball{X: ballX, Y: ballY},
		Paddle1: game.PaddleSnapshot{Y: p1Y},
		Paddle2: game.PaddleSnapshot{Y: p2Y},
		Status:  game.SimPlaying,
	}
}

func TestLocalInputMovesImmediately(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), base)

	p.ApplyLocalInput(game.DirUp)
	frame := p.Render(base)

	if frame.MyPaddleY != 250-game.PaddleSpeed {
		t.Errorf("local input not applied immediately: y=%d want %d", frame.MyPaddleY, 250-int(game.PaddleSpeed))
	}
}

func TestLocalPredictionClampsToCanvas(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 3, 250), base)

	for i := 0; i < 10; i++ {
		p.ApplyLocalInput(game.DirUp)
	}
	if frame := p.Render(base); frame.MyPaddleY != 0 {
		t.Errorf("prediction should clamp at top: y=%d", frame.MyPaddleY)
	}

	for i := 0; i < 200; i++ {
		p.ApplyLocalInput(game.DirDown)
	}
	if frame := p.Render(base); frame.MyPaddleY != game.CanvasHeight-game.PaddleHeight {
		t.Errorf("prediction should clamp at bottom: y=%d", frame.MyPaddleY)
	}
}

func TestConfirmedMoveNetsToZeroCorrection(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), base)

	p.ApplyLocalInput(game.DirUp) // offset -6

	// Server confirms the move: its paddle position already includes it, so
	// the offset must collapse to zero instead of stacking on top.
	p.ObserveSnapshot(snapshotAt(400, 300, 244, 250), base.Add(33*time.Millisecond))

	frame := p.Render(base.Add(33 * time.Millisecond))
	if frame.MyPaddleY != 244 {
		t.Errorf("reconciled position %d want 244", frame.MyPaddleY)
	}
}

func TestUnconfirmedOffsetDecays(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), base)

	p.ApplyLocalInput(game.DirUp) // offset -6

	// Server never saw the input (dropped or rate-limited); the paddle stays
	// put. The residual shrinks by the decay factor, not the full amount.
	p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), base.Add(33*time.Millisecond))

	frame := p.Render(base.Add(33 * time.Millisecond))
	// 250 - 6*0.95 = 244.3 rounds to 244.
	if frame.MyPaddleY != 244 {
		t.Errorf("decayed position %d want 244", frame.MyPaddleY)
	}

	// The residual drains across subsequent snapshots instead of snapping.
	at := base
	for i := 0; i < 200; i++ {
		at = at.Add(33 * time.Millisecond)
		p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), at)
	}
	frame = p.Render(at)
	if frame.MyPaddleY != 250 {
		t.Errorf("offset never drained: y=%d want 250", frame.MyPaddleY)
	}
}

func TestHeldInputTracksServerWithoutDrift(t *testing.T) {
	p := NewPredictor(1)
	at := time.Now()
	serverY := 250.0
	p.ObserveSnapshot(snapshotAt(400, 300, serverY, 250), at)

	// Perfectly predicted held input: two ticks of movement per snapshot,
	// mirrored on the server. The rendered paddle must track the
	// authoritative position instead of accumulating a lead, and must stay
	// inside the canvas once the server paddle hits its clamp.
	for i := 0; i < 40; i++ {
		p.ApplyLocalInput(game.DirDown)
		p.ApplyLocalInput(game.DirDown)

		serverY += 2 * game.PaddleSpeed
		if serverY > game.CanvasHeight-game.PaddleHeight {
			serverY = game.CanvasHeight - game.PaddleHeight
		}
		at = at.Add(33 * time.Millisecond)
		p.ObserveSnapshot(snapshotAt(400, 300, serverY, 250), at)

		frame := p.Render(at)
		if frame.MyPaddleY != round(serverY) {
			t.Fatalf("snapshot %d: rendered %d, server %.1f", i, frame.MyPaddleY, serverY)
		}
		if frame.MyPaddleY > game.CanvasHeight-game.PaddleHeight {
			t.Fatalf("snapshot %d: rendered paddle left the canvas: y=%d", i, frame.MyPaddleY)
		}
	}
}

func TestBallAndOpponentInterpolate(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	interval := 33 * time.Millisecond

	p.ObserveSnapshot(snapshotAt(100, 100, 250, 200), base)
	p.ObserveSnapshot(snapshotAt(110, 120, 250, 210), base.Add(interval))

	// Halfway through the interval after the latest snapshot.
	frame := p.Render(base.Add(interval + interval/2))

	if frame.BallX != 105 || frame.BallY != 110 {
		t.Errorf("ball not interpolated: (%d,%d) want (105,110)", frame.BallX, frame.BallY)
	}
	if frame.OppY != 205 {
		t.Errorf("opponent paddle not interpolated: %d want 205", frame.OppY)
	}
}

func TestInterpolationClampsAtLatest(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	interval := 33 * time.Millisecond

	p.ObserveSnapshot(snapshotAt(100, 100, 250, 200), base)
	p.ObserveSnapshot(snapshotAt(110, 120, 250, 210), base.Add(interval))

	// Stream stalled: render far past the next expected snapshot.
	frame := p.Render(base.Add(10 * interval))

	if frame.BallX != 110 || frame.BallY != 120 || frame.OppY != 210 {
		t.Errorf("stalled stream should pin to latest snapshot: ball=(%d,%d) opp=%d",
			frame.BallX, frame.BallY, frame.OppY)
	}
}

func TestSlotTwoPerspective(t *testing.T) {
	p := NewPredictor(2)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 100, 500), base)

	frame := p.Render(base)
	if frame.MyPaddleY != 500 {
		t.Errorf("slot 2 should track paddle2: y=%d", frame.MyPaddleY)
	}
	if frame.OppY != 100 {
		t.Errorf("slot 2 opponent should be paddle1: y=%d", frame.OppY)
	}
}

func TestResetDropsState(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()
	p.ObserveSnapshot(snapshotAt(400, 300, 250, 250), base)
	p.ApplyLocalInput(game.DirUp)

	p.Reset()
	p.ObserveSnapshot(snapshotAt(400, 300, 300, 250), base.Add(time.Second))

	frame := p.Render(base.Add(time.Second))
	if frame.MyPaddleY != 300 {
		t.Errorf("offset survived reset: y=%d want 300", frame.MyPaddleY)
	}
}

func TestScoreAndStatusComeFromLatest(t *testing.T) {
	p := NewPredictor(1)
	base := time.Now()

	first := snapshotAt(400, 300, 250, 250)
	p.ObserveSnapshot(first, base)

	second := snapshotAt(400, 300, 250, 250)
	second.Score = game.ScoreSnapshot{P1: 5, P2: 3}
	second.Status = game.SimFinished
	second.Winner = 1
	p.ObserveSnapshot(second, base.Add(33*time.Millisecond))

	frame := p.Render(base.Add(40 * time.Millisecond))
	if frame.Score1 != 5 || frame.Score2 != 3 {
		t.Errorf("score not taken from latest snapshot: %d-%d", frame.Score1, frame.Score2)
	}
	if frame.Status != game.SimFinished || frame.Winner != 1 {
		t.Errorf("terminal state not surfaced: status=%s winner=%d", frame.Status, frame.Winner)
	}
}
