package game

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Broadcaster delivers events to connected peers. The WS hub implements it;
// tests substitute a recording fake. Delivery is fire-and-forget — the tick
// loop never waits on it.
type Broadcaster interface {
	BroadcastToMatch(matchID string, message interface{})
	SendToPlayer(playerID string, message interface{})
}

// PairedPlayer is what matchmaking hands us: an already-paired, already-funded
// identity. The core never selects opponents or validates payment.
type PairedPlayer struct {
	ID          string
	DBPlayerID  int
	DisplayName string
	PlayerToken string
	Skin        string
}

// MatchPlayer is one side of a live match.
type MatchPlayer struct {
	ID             string     `json:"id"`
	DBPlayerID     int        `json:"db_player_id,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	PlayerToken    string     `json:"-"`
	Skin           string     `json:"skin,omitempty"`
	Ready          bool       `json:"ready"`
	Connected      bool       `json:"connected"`
	DisconnectedAt *time.Time `json:"-"`

	intent     Direction
	limiter    *inputLimiter
	graceTimer *time.Timer
}

// ChatMessage is one entry in the session's bounded chat buffer.
type ChatMessage struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// SessionSettings are the tunable timings and limits, taken from config.
type SessionSettings struct {
	ReadyTimeout    time.Duration
	Countdown       time.Duration
	DisconnectGrace time.Duration
	InputPerSecond  int
	ChatBufferSize  int
	ChatMaxLen      int
}

// MatchSession owns one match's full lifecycle: ready-wait, countdown, the
// fixed-rate tick loop, scoring, forfeit, and result reporting. All state is
// guarded by mu; ticks and input handlers never race.
type MatchSession struct {
	ID          string       `json:"id"`
	Token       string       `json:"token"`
	Player1     *MatchPlayer `json:"player1"`
	Player2     *MatchPlayer `json:"player2"`
	Sim         *SimState    `json:"sim"`
	Phase       Phase        `json:"phase"`
	StakeAmount int          `json:"stake_amount"`
	WinType     string       `json:"win_type,omitempty"` // "score" | "forfeit"
	EndReason   string       `json:"end_reason,omitempty"`
	SessionID   int          `json:"session_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	chat []ChatMessage

	settings  SessionSettings
	hub       Broadcaster
	rng       *rand.Rand
	tickCount uint64

	readyTimer  *time.Timer
	ticker      *time.Ticker
	tickDone    chan struct{}
	tickStopped bool

	mu sync.Mutex
}

// NewMatchSession builds a session in ready-wait. Call Start to arm the ready
// timer once the session is registered.
func NewMatchSession(id, token string, p1, p2 PairedPlayer, stake int, hub Broadcaster, settings SessionSettings) *MatchSession {
	mk := func(p PairedPlayer) *MatchPlayer {
		return &MatchPlayer{
			ID:          p.ID,
			DBPlayerID:  p.DBPlayerID,
			DisplayName: p.DisplayName,
			PlayerToken: p.PlayerToken,
			Skin:        p.Skin,
			intent:      DirStop,
			limiter:     newInputLimiter(settings.InputPerSecond, time.Second),
		}
	}
	return &MatchSession{
		ID:          id,
		Token:       token,
		Player1:     mk(p1),
		Player2:     mk(p2),
		Sim:         NewSimState(),
		Phase:       PhaseReadyWait,
		StakeAmount: stake,
		CreatedAt:   time.Now(),
		settings:    settings,
		hub:         hub,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start enters ready-wait: arms the ready timer and announces the phase.
func (s *MatchSession) Start() {
	s.mu.Lock()
	s.readyTimer = time.AfterFunc(s.settings.ReadyTimeout, s.readyTimeout)
	timeout := s.settings.ReadyTimeout
	s.mu.Unlock()

	s.broadcast(map[string]interface{}{
		"type":            "ready_phase_entered",
		"timeout_seconds": int(timeout.Seconds()),
	})
}

// HandleReady marks a player ready. When both are ready before the timer
// fires, the session moves to countdown.
func (s *MatchSession) HandleReady(playerID string) {
	s.mu.Lock()
	if s.Phase != PhaseReadyWait {
		s.mu.Unlock()
		return
	}
	p := s.playerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return
	}
	p.Ready = true
	p1Ready, p2Ready := s.Player1.Ready, s.Player2.Ready
	bothReady := p1Ready && p2Ready

	var countdown time.Duration
	if bothReady {
		if s.readyTimer != nil {
			s.readyTimer.Stop()
		}
		s.Phase = PhaseCountdown
		countdown = s.settings.Countdown
		time.AfterFunc(countdown, s.beginActive)
	}
	s.mu.Unlock()

	s.broadcast(map[string]interface{}{
		"type":     "ready_status_changed",
		"player":   playerID,
		"p1_ready": p1Ready,
		"p2_ready": p2Ready,
	})

	if bothReady {
		log.Printf("[MATCH] %s both players ready, countdown %s", s.ID, countdown)
		s.broadcast(map[string]interface{}{
			"type":    "countdown_started",
			"seconds": int(countdown.Seconds()),
		})
	}
}

// readyTimeout fires when the ready-wait timer elapses. The state check
// happens here, at fire time: if both players completed the pair before the
// timer fired, they won the race and this is a no-op.
func (s *MatchSession) readyTimeout() {
	s.mu.Lock()
	if s.Phase != PhaseReadyWait {
		s.mu.Unlock()
		return
	}
	s.Phase = PhaseCancelled
	now := time.Now()
	s.CompletedAt = &now
	s.mu.Unlock()

	log.Printf("[MATCH] %s cancelled: ready timeout", s.ID)
	s.broadcast(map[string]interface{}{
		"type":   "ready_timeout_cancelled",
		"reason": "Not all players readied up in time",
	})

	if Manager != nil {
		Manager.CancelMatch(s)
	}
}

// beginActive fires when the countdown elapses: launch the ball and start the
// fixed-rate tick loop.
func (s *MatchSession) beginActive() {
	s.mu.Lock()
	if s.Phase != PhaseCountdown {
		s.mu.Unlock()
		return
	}
	s.Phase = PhaseActive
	now := time.Now()
	s.StartedAt = &now
	s.launchLocked()

	s.ticker = time.NewTicker(TickInterval)
	s.tickDone = make(chan struct{})
	go s.runTicks(s.ticker, s.tickDone)

	started := map[string]interface{}{
		"type": "match_started",
		"player1": map[string]interface{}{
			"id": s.Player1.ID, "display_name": s.Player1.DisplayName, "skin": s.Player1.Skin,
		},
		"player2": map[string]interface{}{
			"id": s.Player2.ID, "display_name": s.Player2.DisplayName, "skin": s.Player2.Skin,
		},
		"state": SerializeState(s.Sim),
	}
	s.mu.Unlock()

	log.Printf("[MATCH] %s active", s.ID)
	s.broadcast(started)

	if Manager != nil {
		Manager.MarkSessionStarted(s)
	}
}

func (s *MatchSession) runTicks(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// launchLocked relaunches the ball with fresh random parameters. The rng
// lives on the session — the kernel itself stays deterministic.
func (s *MatchSession) launchLocked() {
	angle := (s.rng.Float64() - 0.5) * (math.Pi / 2) // [-45°, 45°]
	dir := 1
	if s.rng.Intn(2) == 0 {
		dir = -1
	}
	LaunchBall(s.Sim, angle, dir)
}

// tick is one fixed-timestep advance of the authoritative simulation.
func (s *MatchSession) tick() {
	s.mu.Lock()
	if s.Phase != PhaseActive || s.Sim.Status != SimPlaying {
		s.mu.Unlock()
		return
	}
	s.tickCount++
	s.Sim.Sound = ""

	// Stored intents apply every tick, even mid-pause.
	ApplyInput(s.Sim, 1, s.Player1.intent)
	ApplyInput(s.Sim, 2, s.Player2.intent)

	if s.Sim.Paused {
		relaunched := TickPause(s.Sim)
		if relaunched {
			s.launchLocked()
		}
		eligible := relaunched || s.tickCount%BroadcastEvery == 0
		snap := SerializeState(s.Sim)
		s.mu.Unlock()
		if eligible {
			s.broadcast(map[string]interface{}{"type": "state", "state": snap})
		}
		return
	}

	res := StepBall(s.Sim)

	if res.Scored != 0 {
		if res.Scored == 1 {
			s.Sim.Score1++
		} else {
			s.Sim.Score2++
		}

		if s.Sim.Score1 >= WinScore || s.Sim.Score2 >= WinScore {
			finished := s.finishLocked(res.Scored, "score", "Win threshold reached")
			snap := SerializeState(s.Sim)
			s.mu.Unlock()
			if finished {
				s.announceFinish(snap)
			}
			return
		}

		ResetBallAfterScore(s.Sim)
		snap := SerializeState(s.Sim)
		s.mu.Unlock()
		// Scoring is broadcast synchronously, never deferred to the next
		// scheduled broadcast.
		s.broadcast(map[string]interface{}{"type": "state", "state": snap})
		return
	}

	eligible := res.Sound != "" || s.tickCount%BroadcastEvery == 0
	snap := SerializeState(s.Sim)
	s.mu.Unlock()
	if eligible {
		s.broadcast(map[string]interface{}{"type": "state", "state": snap})
	}
}

// HandleInput validates, rate-limits, and stores a direction for the next
// tick to consume. It never advances physics itself. Anything invalid —
// wrong phase, unknown sender, malformed direction, over the rate limit —
// is dropped without a reply.
func (s *MatchSession) HandleInput(playerID string, dir Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != PhaseActive {
		return
	}
	if !ValidDirection(dir) {
		return
	}
	p := s.playerLocked(playerID)
	if p == nil {
		return
	}
	if !p.limiter.Allow(time.Now()) {
		return
	}
	p.intent = dir
}

// HandleChat appends to the bounded chat buffer and relays to the room.
// Per-second throttling happens at the transport layer.
func (s *MatchSession) HandleChat(playerID, text string) {
	s.mu.Lock()
	p := s.playerLocked(playerID)
	if p == nil || text == "" {
		s.mu.Unlock()
		return
	}
	if len(text) > s.settings.ChatMaxLen {
		text = text[:s.settings.ChatMaxLen]
	}
	msg := ChatMessage{PlayerID: p.ID, DisplayName: p.DisplayName, Text: text, At: time.Now()}
	s.chat = append(s.chat, msg)
	if max := s.settings.ChatBufferSize; max > 0 && len(s.chat) > max {
		s.chat = s.chat[len(s.chat)-max:]
	}
	s.mu.Unlock()

	s.broadcast(map[string]interface{}{
		"type":         "chat",
		"player":       msg.PlayerID,
		"display_name": msg.DisplayName,
		"text":         msg.Text,
	})
}

// HandleDisconnect flags the player, notifies the opponent, and arms the
// forfeit grace timer if the match is live.
func (s *MatchSession) HandleDisconnect(playerID string) {
	s.mu.Lock()
	p := s.playerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return
	}
	p.Connected = false
	now := time.Now()
	p.DisconnectedAt = &now

	var oppID string
	var grace time.Duration
	if s.Phase == PhaseActive {
		grace = s.settings.DisconnectGrace
		if p.graceTimer != nil {
			p.graceTimer.Stop()
		}
		id := playerID
		p.graceTimer = time.AfterFunc(grace, func() { s.forfeitIfStillGone(id) })
		oppID = s.opponentLocked(playerID).ID
	}
	s.mu.Unlock()

	if oppID != "" {
		log.Printf("[MATCH] %s player %s disconnected, grace %s", s.ID, playerID, grace)
		s.hub.SendToPlayer(oppID, map[string]interface{}{
			"type":          "opponent_disconnected",
			"player":        playerID,
			"grace_seconds": int(grace.Seconds()),
			"message":       "Opponent disconnected",
		})
	}
}

// HandleReconnect clears the disconnect flag and cancels the pending forfeit.
// The transport layer has already swapped in the new connection handle.
func (s *MatchSession) HandleReconnect(playerID string) {
	s.mu.Lock()
	p := s.playerLocked(playerID)
	if p == nil {
		s.mu.Unlock()
		return
	}
	wasGone := p.DisconnectedAt != nil
	p.Connected = true
	p.DisconnectedAt = nil
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	var oppID string
	if wasGone && s.Phase == PhaseActive {
		oppID = s.opponentLocked(playerID).ID
	}
	s.mu.Unlock()

	if oppID != "" {
		log.Printf("[MATCH] %s player %s reconnected", s.ID, playerID)
		s.hub.SendToPlayer(oppID, map[string]interface{}{
			"type":    "opponent_reconnected",
			"player":  playerID,
			"message": "Opponent reconnected",
		})
	}
}

// MarkConnected records that a player's transport is up (used outside the
// disconnect/reconnect pair, e.g. on first join).
func (s *MatchSession) MarkConnected(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.playerLocked(playerID); p != nil {
		p.Connected = true
		p.DisconnectedAt = nil
	}
}

// forfeitIfStillGone runs when a grace timer fires. Cancellation and firing
// can race, so the disconnect flag is checked now, at execution time — if the
// player made it back, this is a no-op.
func (s *MatchSession) forfeitIfStillGone(playerID string) {
	s.mu.Lock()
	p := s.playerLocked(playerID)
	if p == nil || p.Connected || p.DisconnectedAt == nil || s.Phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	winner := s.slotOfLocked(s.opponentLocked(playerID).ID)
	finished := s.finishLocked(winner, "forfeit", "Opponent disconnected")
	snap := SerializeState(s.Sim)
	s.mu.Unlock()

	if finished {
		log.Printf("[MATCH] %s forfeit: player %s never returned", s.ID, playerID)
		s.announceFinish(snap)
	}
}

// Forfeit ends the match immediately in the opponent's favor (concede).
func (s *MatchSession) Forfeit(playerID, reason string) {
	s.mu.Lock()
	p := s.playerLocked(playerID)
	if p == nil || s.Phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	winner := s.slotOfLocked(s.opponentLocked(playerID).ID)
	finished := s.finishLocked(winner, "forfeit", reason)
	snap := SerializeState(s.Sim)
	s.mu.Unlock()

	if finished {
		s.announceFinish(snap)
	}
}

// finishLocked performs the single transition into PhaseFinished. It is
// idempotent: a forfeit racing a score-finish finds the phase already set and
// does nothing, so the ticker stops exactly once and settlement runs exactly
// once.
func (s *MatchSession) finishLocked(winnerSlot int, winType, reason string) bool {
	if s.Phase == PhaseFinished || s.Phase == PhaseCancelled {
		return false
	}
	s.Phase = PhaseFinished
	s.stopTickerLocked()
	s.Sim.Status = SimFinished
	s.Sim.Winner = winnerSlot
	s.WinType = winType
	s.EndReason = reason
	now := time.Now()
	s.CompletedAt = &now
	return true
}

// stopTickerLocked halts the tick loop. Safe to call more than once and
// before the loop ever started.
func (s *MatchSession) stopTickerLocked() {
	if s.tickStopped {
		return
	}
	s.tickStopped = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.tickDone != nil {
		close(s.tickDone)
	}
}

// announceFinish broadcasts the outcome and hands off to settlement. The
// outcome is final once recorded; settlement success or failure is reported
// separately and never reopens the match.
func (s *MatchSession) announceFinish(snap Snapshot) {
	winner, loser := s.WinnerLoser()
	payload := map[string]interface{}{
		"type":     "match_finished",
		"winner":   winner.ID,
		"loser":    loser.ID,
		"score":    snap.Score,
		"win_type": s.WinType,
		"reason":   s.EndReason,
		"state":    snap,
	}
	if s.WinType == "forfeit" {
		payload["type"] = "forfeit_finished"
	}
	log.Printf("[MATCH] %s finished: winner=%s win_type=%s score=%d-%d",
		s.ID, winner.ID, s.WinType, snap.Score.P1, snap.Score.P2)
	s.broadcast(payload)

	if Manager != nil {
		go Manager.FinalizeMatch(s)
	}
}

// WinnerLoser returns the winning and losing player records after finish.
func (s *MatchSession) WinnerLoser() (*MatchPlayer, *MatchPlayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sim.Winner == 1 {
		return s.Player1, s.Player2
	}
	return s.Player2, s.Player1
}

// CurrentPhase returns the lifecycle phase.
func (s *MatchSession) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Phase
}

// CurrentSnapshot returns the wire projection of the simulation.
func (s *MatchSession) CurrentSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SerializeState(s.Sim)
}

// GetStateForPlayer builds the personalized view sent on join/get_state.
func (s *MatchSession) GetStateForPlayer(playerID string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, opp := s.Player1, s.Player2
	if s.Player2.ID == playerID {
		me, opp = s.Player2, s.Player1
	}

	chat := make([]ChatMessage, len(s.chat))
	copy(chat, s.chat)

	return map[string]interface{}{
		"match_id":              s.ID,
		"token":                 s.Token,
		"phase":                 s.Phase,
		"my_id":                 me.ID,
		"my_slot":               s.slotOfLocked(me.ID),
		"opponent_id":           opp.ID,
		"my_display_name":       me.DisplayName,
		"opponent_display_name": opp.DisplayName,
		"my_skin":               me.Skin,
		"opponent_skin":         opp.Skin,
		"my_ready":              me.Ready,
		"opponent_ready":        opp.Ready,
		"opponent_connected":    opp.Connected,
		"stake_amount":          s.StakeAmount,
		"state":                 SerializeState(s.Sim),
		"win_type":              s.WinType,
		"end_reason":            s.EndReason,
		"chat":                  chat,
	}
}

// Record builds the serializable view of the session used for persistence.
// Player records are copied under the lock: connection and ready flags keep
// changing through the retention window while the record is written out.
func (s *MatchSession) Record() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	p1, p2 := *s.Player1, *s.Player2
	return map[string]interface{}{
		"id":           s.ID,
		"token":        s.Token,
		"player1":      p1,
		"player2":      p2,
		"phase":        s.Phase,
		"state":        SerializeState(s.Sim),
		"stake_amount": s.StakeAmount,
		"win_type":     s.WinType,
		"end_reason":   s.EndReason,
		"session_id":   s.SessionID,
		"created_at":   s.CreatedAt,
		"started_at":   s.StartedAt,
		"completed_at": s.CompletedAt,
	}
}

// IsParticipant reports whether playerID belongs to this session.
func (s *MatchSession) IsParticipant(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerLocked(playerID) != nil
}

// OpponentID returns the other player's id.
func (s *MatchSession) OpponentID(playerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opp := s.opponentLocked(playerID); opp != nil {
		return opp.ID
	}
	return ""
}

// PlayerBySlot returns the player in slot 1 or 2.
func (s *MatchSession) PlayerBySlot(slot int) *MatchPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot == 1 {
		return s.Player1
	}
	return s.Player2
}

func (s *MatchSession) broadcast(message interface{}) {
	if s.hub != nil {
		s.hub.BroadcastToMatch(s.ID, message)
	}
}

func (s *MatchSession) playerLocked(playerID string) *MatchPlayer {
	if s.Player1.ID == playerID {
		return s.Player1
	}
	if s.Player2.ID == playerID {
		return s.Player2
	}
	return nil
}

func (s *MatchSession) opponentLocked(playerID string) *MatchPlayer {
	if s.Player1.ID == playerID {
		return s.Player2
	}
	return s.Player1
}

func (s *MatchSession) slotOfLocked(playerID string) int {
	if s.Player1.ID == playerID {
		return 1
	}
	if s.Player2.ID == playerID {
		return 2
	}
	return 0
}
