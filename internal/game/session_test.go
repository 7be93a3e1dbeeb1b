package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeHub records everything a session broadcasts.
type fakeHub struct {
	mu       sync.Mutex
	matchMsg []map[string]interface{}
	playerTo map[string][]map[string]interface{}
}

func newFakeHub() *fakeHub {
	return &fakeHub{playerTo: make(map[string][]map[string]interface{})}
}

func (h *fakeHub) BroadcastToMatch(matchID string, message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := message.(map[string]interface{}); ok {
		h.matchMsg = append(h.matchMsg, m)
	}
}

func (h *fakeHub) SendToPlayer(playerID string, message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := message.(map[string]interface{}); ok {
		h.playerTo[playerID] = append(h.playerTo[playerID], m)
	}
}

func (h *fakeHub) sawType(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.matchMsg {
		if m["type"] == eventType {
			return true
		}
	}
	return false
}

func (h *fakeHub) playerSawType(playerID, eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.playerTo[playerID] {
		if m["type"] == eventType {
			return true
		}
	}
	return false
}

func testSettings() SessionSettings {
	return SessionSettings{
		ReadyTimeout:    50 * time.Millisecond,
		Countdown:       5 * time.Millisecond,
		DisconnectGrace: 40 * time.Millisecond,
		InputPerSecond:  3,
		ChatBufferSize:  5,
		ChatMaxLen:      20,
	}
}

func newTestSession(hub *fakeHub, settings SessionSettings) *MatchSession {
	p1 := PairedPlayer{ID: "alice", DisplayName: "Alice"}
	p2 := PairedPlayer{ID: "bob", DisplayName: "Bob"}
	return NewMatchSession("match_test", "tok_test", p1, p2, 0, hub, settings)
}

func waitForPhase(t *testing.T, s *MatchSession, want Phase, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if s.CurrentPhase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, still %s", want, s.CurrentPhase())
}

func TestReadyFlowStartsMatch(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	s.Start()

	s.HandleReady("alice")
	if s.CurrentPhase() != PhaseReadyWait {
		t.Fatalf("one ready should not advance phase, got %s", s.CurrentPhase())
	}
	s.HandleReady("bob")

	waitForPhase(t, s, PhaseActive, time.Second)

	if !hub.sawType("countdown_started") {
		t.Errorf("countdown_started never broadcast")
	}
	if !hub.sawType("match_started") {
		t.Errorf("match_started never broadcast")
	}

	snap := s.CurrentSnapshot()
	if snap.Ball.VX == 0 && snap.Ball.VY == 0 {
		t.Errorf("ball should be launched once active")
	}

	s.Forfeit("bob", "test teardown")
}

func TestReadyTimeoutCancelsMatch(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	s.Start()

	s.HandleReady("alice") // bob never readies

	waitForPhase(t, s, PhaseCancelled, time.Second)

	if !hub.sawType("ready_timeout_cancelled") {
		t.Errorf("cancellation never broadcast")
	}
	if s.CompletedAt == nil {
		t.Errorf("cancelled session should have a completion timestamp")
	}
}

func TestReadyAfterTimeoutIsIgnored(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	s.Start()

	waitForPhase(t, s, PhaseCancelled, time.Second)

	s.HandleReady("alice")
	s.HandleReady("bob")
	time.Sleep(20 * time.Millisecond)

	if s.CurrentPhase() != PhaseCancelled {
		t.Errorf("ready after cancellation should be ignored, got %s", s.CurrentPhase())
	}
}

// forceActive puts a session straight into the active phase without timers
// or a running ticker, so tests can drive ticks by hand.
func forceActive(s *MatchSession) {
	s.mu.Lock()
	s.Phase = PhaseActive
	now := time.Now()
	s.StartedAt = &now
	s.mu.Unlock()
}

func TestHandleInputStoresIntent(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)

	s.HandleInput("alice", DirUp)
	if s.Player1.intent != DirUp {
		t.Errorf("intent not stored: %s", s.Player1.intent)
	}

	s.HandleInput("alice", "sideways")
	if s.Player1.intent != DirUp {
		t.Errorf("invalid direction should not overwrite intent")
	}

	s.HandleInput("carol", DirDown)
	if s.Player1.intent != DirUp || s.Player2.intent != DirStop {
		t.Errorf("unknown sender should be dropped")
	}
}

func TestHandleInputIgnoredOutsideActive(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())

	s.HandleInput("alice", DirUp)
	if s.Player1.intent != DirStop {
		t.Errorf("input during ready-wait should be dropped")
	}
}

func TestInputRateLimit(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings()) // 3 per second
	forceActive(s)

	s.HandleInput("alice", DirUp)
	s.HandleInput("alice", DirDown)
	s.HandleInput("alice", DirUp)
	// Over the limit: this one must be dropped, leaving the last accepted
	// intent in place.
	s.HandleInput("alice", DirDown)

	if s.Player1.intent != DirUp {
		t.Errorf("rate-limited input overwrote intent: %s", s.Player1.intent)
	}
}

func TestTickAppliesIntentsAndBroadcasts(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)
	LaunchBall(s.Sim, 0, 1)

	s.HandleInput("alice", DirUp)
	startY := s.Sim.Paddle1Y

	s.tick()
	s.tick()

	if s.Sim.Paddle1Y != startY-2*PaddleSpeed {
		t.Errorf("intent should apply every tick: y=%.1f want %.1f", s.Sim.Paddle1Y, startY-2*PaddleSpeed)
	}
	if !hub.sawType("state") {
		t.Errorf("no state broadcast after an eligible tick")
	}
}

func TestScoreResetsAndBroadcastsImmediately(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)

	// Ball about to exit the left edge
	s.Sim.Ball.X = 0.5
	s.Sim.Ball.Y = CanvasHeight / 2
	s.Sim.Ball.VX = -BallMaxSpeed
	s.Sim.Paddle1Y = 0

	s.tick()

	if s.Sim.Score2 != 1 {
		t.Fatalf("player 2 should have scored, got %d-%d", s.Sim.Score1, s.Sim.Score2)
	}
	if !s.Sim.Paused {
		t.Errorf("ball should pause after a score")
	}
	if !hub.sawType("state") {
		t.Errorf("score must broadcast on the scoring tick")
	}
}

func TestWinThresholdFinishesMatch(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)

	s.Sim.Score1 = WinScore - 1
	s.Sim.Ball.X = CanvasWidth - 0.5
	s.Sim.Ball.Y = CanvasHeight / 2
	s.Sim.Ball.VX = BallMaxSpeed
	s.Sim.Paddle2Y = 0

	s.tick()

	if s.CurrentPhase() != PhaseFinished {
		t.Fatalf("match should finish at the win threshold, phase=%s", s.CurrentPhase())
	}
	if s.Sim.Winner != 1 || s.WinType != "score" {
		t.Errorf("wrong outcome: winner=%d win_type=%s", s.Sim.Winner, s.WinType)
	}
	if !hub.sawType("match_finished") {
		t.Errorf("match_finished never broadcast")
	}

	// Ticks after finish must not change anything.
	score := s.Sim.Score1
	s.tick()
	if s.Sim.Score1 != score {
		t.Errorf("tick after finish mutated state")
	}
}

func TestDisconnectForfeitAfterGrace(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings()) // 40ms grace
	forceActive(s)

	s.HandleDisconnect("bob")

	if !hub.playerSawType("alice", "opponent_disconnected") {
		t.Errorf("opponent not notified of disconnect")
	}

	waitForPhase(t, s, PhaseFinished, time.Second)

	if s.WinType != "forfeit" || s.Sim.Winner != 1 {
		t.Errorf("expected forfeit win for player 1: win_type=%s winner=%d", s.WinType, s.Sim.Winner)
	}
	if !hub.sawType("forfeit_finished") {
		t.Errorf("forfeit_finished never broadcast")
	}
}

func TestReconnectCancelsForfeit(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings()) // 40ms grace
	forceActive(s)

	s.HandleDisconnect("bob")
	time.Sleep(25 * time.Millisecond) // most of the grace window
	s.HandleReconnect("bob")
	time.Sleep(50 * time.Millisecond) // past where the timer would have fired

	if s.CurrentPhase() != PhaseActive {
		t.Errorf("reconnect inside grace should keep the match alive, phase=%s", s.CurrentPhase())
	}
	if !hub.playerSawType("alice", "opponent_reconnected") {
		t.Errorf("opponent not notified of reconnect")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)

	s.Sim.Score1 = WinScore - 1
	s.Sim.Ball.X = CanvasWidth - 0.5
	s.Sim.Ball.Y = CanvasHeight / 2
	s.Sim.Ball.VX = BallMaxSpeed
	s.Sim.Paddle2Y = 0
	s.tick()

	// A forfeit racing in after the score-finish must not flip the outcome.
	s.Forfeit("alice", "late concede")

	if s.WinType != "score" || s.Sim.Winner != 1 {
		t.Errorf("finish overwritten: win_type=%s winner=%d", s.WinType, s.Sim.Winner)
	}
}

func TestDisconnectOutsideActiveArmsNoForfeit(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	s.Start()

	s.HandleDisconnect("bob")
	time.Sleep(60 * time.Millisecond) // past the grace window

	if phase := s.CurrentPhase(); phase == PhaseFinished {
		t.Errorf("disconnect before the match is live must not forfeit")
	}
}

func TestChatBufferBoundsAndTruncation(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings()) // buffer 5, max len 20

	for i := 0; i < 8; i++ {
		s.HandleChat("alice", "hello there friendly opponent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chat) != 5 {
		t.Errorf("chat buffer should cap at 5, got %d", len(s.chat))
	}
	for _, m := range s.chat {
		if len(m.Text) > 20 {
			t.Errorf("chat text not truncated: %q", m.Text)
		}
	}
}

func TestGetStateForPlayerPerspective(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())

	view := s.GetStateForPlayer("bob")
	if view["my_id"] != "bob" || view["opponent_id"] != "alice" {
		t.Errorf("wrong perspective: my=%v opp=%v", view["my_id"], view["opponent_id"])
	}
	if view["my_slot"] != 2 {
		t.Errorf("bob should be slot 2, got %v", view["my_slot"])
	}
}

func TestRecordCopiesPlayersAtCallTime(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)
	s.MarkConnected("alice")
	s.MarkConnected("bob")
	s.Forfeit("bob", "conceded")

	rec := s.Record()

	// Connection flags keep changing while the record sits in the retention
	// window; the record must hold copies taken under the lock, not live
	// pointers into the session.
	s.HandleDisconnect("alice")

	p1, ok := rec["player1"].(MatchPlayer)
	if !ok {
		t.Fatalf("record player1 is %T, want MatchPlayer value", rec["player1"])
	}
	if !p1.Connected {
		t.Errorf("record reflects mutation after the call")
	}
	if rec["win_type"] != "forfeit" {
		t.Errorf("win_type = %v want forfeit", rec["win_type"])
	}
	if rec["phase"] != PhaseFinished {
		t.Errorf("phase = %v want %v", rec["phase"], PhaseFinished)
	}
}

func TestRecordIsSafeAlongsideConnectionChanges(t *testing.T) {
	hub := newFakeHub()
	s := newTestSession(hub, testSettings())
	forceActive(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.MarkConnected("alice")
			s.HandleDisconnect("alice")
			s.HandleReconnect("alice")
		}
	}()
	for i := 0; i < 100; i++ {
		if _, err := json.Marshal(s.Record()); err != nil {
			t.Fatalf("marshal record: %v", err)
		}
	}
	<-done
}
