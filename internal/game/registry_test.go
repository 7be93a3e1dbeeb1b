package game

import (
	"testing"
	"time"

	"github.com/playrally/backend/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ReadyTimeoutSecs:          1,
		CountdownSecs:             1,
		DisconnectGracePeriodSecs: 1,
		MatchRetentionSecs:        1,
		InputRatePerSecond:        15,
		ChatBufferSize:            50,
		ChatMaxLength:             280,
		CommissionPercentage:      10,
	}
}

func newTestManager(t *testing.T) *MatchManager {
	t.Helper()
	mm := NewMatchManager(nil, nil, testConfig())
	mm.SetBroadcaster(newFakeHub())
	prev := Manager
	Manager = mm
	t.Cleanup(func() { Manager = prev })
	return mm
}

func TestCreateMatchRegistersBothPlayers(t *testing.T) {
	mm := newTestManager(t)

	p1 := PairedPlayer{ID: "alice"}
	p2 := PairedPlayer{ID: "bob"}
	s, err := mm.CreateMatch(p1, p2, 0)
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	if s.Token == "" || s.ID == "" {
		t.Errorf("match missing identifiers: id=%q token=%q", s.ID, s.Token)
	}
	if s.Player1.PlayerToken == "" || s.Player2.PlayerToken == "" {
		t.Errorf("player tokens not generated")
	}
	if s.Player1.PlayerToken == s.Player2.PlayerToken {
		t.Errorf("player tokens must differ")
	}

	got, err := mm.GetMatch(s.ID)
	if err != nil || got != s {
		t.Errorf("GetMatch failed: %v", err)
	}
	got, err = mm.GetMatchByToken(s.Token)
	if err != nil || got != s {
		t.Errorf("GetMatchByToken failed: %v", err)
	}
	got, err = mm.GetMatchForPlayer("bob")
	if err != nil || got != s {
		t.Errorf("GetMatchForPlayer failed: %v", err)
	}
}

func TestAuthorizePlayer(t *testing.T) {
	mm := newTestManager(t)

	s, err := mm.CreateTestMatch("Alice", "Bob", 0)
	if err != nil {
		t.Fatalf("CreateTestMatch: %v", err)
	}

	got, playerID, err := mm.AuthorizePlayer(s.Token, s.Player1.PlayerToken)
	if err != nil || got != s || playerID != s.Player1.ID {
		t.Errorf("player 1 authorization failed: %v", err)
	}

	if _, _, err := mm.AuthorizePlayer(s.Token, "bogus"); err == nil {
		t.Errorf("bogus player token accepted")
	}
	if _, _, err := mm.AuthorizePlayer("bogus", s.Player1.PlayerToken); err == nil {
		t.Errorf("bogus match token accepted")
	}
}

func TestCancelMatchRemovesImmediately(t *testing.T) {
	mm := newTestManager(t)

	s, err := mm.CreateTestMatch("Alice", "Bob", 0)
	if err != nil {
		t.Fatalf("CreateTestMatch: %v", err)
	}

	mm.CancelMatch(s)

	if _, err := mm.GetMatch(s.ID); err == nil {
		t.Errorf("cancelled match still registered")
	}
	if _, err := mm.GetMatchForPlayer(s.Player1.ID); err == nil {
		t.Errorf("player index not cleared on cancel")
	}
}

func TestFinalizeMatchRetainsThenRemoves(t *testing.T) {
	mm := newTestManager(t)

	s, err := mm.CreateTestMatch("Alice", "Bob", 0)
	if err != nil {
		t.Fatalf("CreateTestMatch: %v", err)
	}
	s.mu.Lock()
	s.finishLocked(1, "score", "Win threshold reached")
	s.mu.Unlock()

	mm.FinalizeMatch(s)

	// Inside the retention window the match is still readable.
	if _, err := mm.GetMatch(s.ID); err != nil {
		t.Errorf("finished match removed before retention window elapsed")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := mm.GetMatch(s.ID); err != nil {
			return // removed as expected
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("finished match never removed after retention window")
}

func TestActiveMatchCount(t *testing.T) {
	mm := newTestManager(t)

	if mm.ActiveMatchCount() != 0 {
		t.Fatalf("fresh manager should hold no matches")
	}
	s1, _ := mm.CreateTestMatch("A", "B", 0)
	s2, _ := mm.CreateTestMatch("C", "D", 0)
	if mm.ActiveMatchCount() != 2 {
		t.Errorf("expected 2 matches, got %d", mm.ActiveMatchCount())
	}
	mm.CancelMatch(s1)
	mm.CancelMatch(s2)
	if mm.ActiveMatchCount() != 0 {
		t.Errorf("expected 0 matches after cancel, got %d", mm.ActiveMatchCount())
	}
}
