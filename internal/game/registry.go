package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// MatchManager owns every live MatchSession and the player-to-match index.
// Matchmaking happens upstream; sessions arrive here already paired and
// funded.
type MatchManager struct {
	matches       map[string]*MatchSession // keyed by match ID
	byToken       map[string]string        // match token -> match ID
	playerToMatch map[string]string        // player ID -> match ID
	rdb           *redis.Client            // Redis client for state cache and pub/sub
	db            *sqlx.DB                 // SQL DB for persistent records
	config        *config.Config
	broadcaster   Broadcaster
	mu            sync.RWMutex
}

var (
	// Global match manager instance
	Manager *MatchManager
)

// InitializeManager initializes the global match manager with Redis, DB and config
func InitializeManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	Manager = NewMatchManager(db, rdb, cfg)
}

// NewMatchManager creates a new match manager
func NewMatchManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) *MatchManager {
	return &MatchManager{
		matches:       make(map[string]*MatchSession),
		byToken:       make(map[string]string),
		playerToMatch: make(map[string]string),
		rdb:           rdb,
		db:            db,
		config:        cfg,
	}
}

// SetBroadcaster wires the transport hub in. Called once at startup, before
// any match is created.
func (mm *MatchManager) SetBroadcaster(b Broadcaster) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.broadcaster = b
}

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// generateMatchID generates a unique match ID
func generateMatchID() string {
	return "match_" + generateToken(8)
}

func (mm *MatchManager) sessionSettings() SessionSettings {
	cfg := mm.config
	return SessionSettings{
		ReadyTimeout:    time.Duration(cfg.ReadyTimeoutSecs) * time.Second,
		Countdown:       time.Duration(cfg.CountdownSecs) * time.Second,
		DisconnectGrace: time.Duration(cfg.DisconnectGracePeriodSecs) * time.Second,
		InputPerSecond:  cfg.InputRatePerSecond,
		ChatBufferSize:  cfg.ChatBufferSize,
		ChatMaxLen:      cfg.ChatMaxLength,
	}
}

// CreateMatch registers a session for two already-paired players, persists
// the session row, and enters ready-wait.
func (mm *MatchManager) CreateMatch(p1, p2 PairedPlayer, stakeAmount int) (*MatchSession, error) {
	matchID := generateMatchID()
	matchToken := generateToken(16)

	if p1.PlayerToken == "" {
		p1.PlayerToken = generateToken(16)
	}
	if p2.PlayerToken == "" {
		p2.PlayerToken = generateToken(16)
	}

	mm.mu.Lock()
	broadcaster := mm.broadcaster
	mm.mu.Unlock()

	session := NewMatchSession(matchID, matchToken, p1, p2, stakeAmount, broadcaster, mm.sessionSettings())

	if mm.db != nil && p1.DBPlayerID > 0 && p2.DBPlayerID > 0 {
		var sessionID int
		err := mm.db.Get(&sessionID, `INSERT INTO game_sessions (match_token, player1_id, player2_id, stake_amount, status, created_at)
			VALUES ($1, $2, $3, $4, 'WAITING', NOW()) RETURNING id`,
			matchToken, p1.DBPlayerID, p2.DBPlayerID, stakeAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to create session row: %w", err)
		}
		session.SessionID = sessionID

		if stakeAmount > 0 {
			if err := mm.ReserveStakes(sessionID, p1.DBPlayerID, p2.DBPlayerID, stakeAmount); err != nil {
				if _, uerr := mm.db.Exec(`UPDATE game_sessions SET status='CANCELLED', completed_at=NOW() WHERE id=$1`, sessionID); uerr != nil {
					log.Printf("[DB] Failed to cancel unfunded session %d: %v", sessionID, uerr)
				}
				return nil, fmt.Errorf("failed to reserve stakes: %w", err)
			}
		}
	}

	mm.mu.Lock()
	mm.matches[matchID] = session
	mm.byToken[matchToken] = matchID
	mm.playerToMatch[p1.ID] = matchID
	mm.playerToMatch[p2.ID] = matchID
	mm.mu.Unlock()

	mm.saveMatchToRedis(session)
	mm.publishMatchEvent(map[string]interface{}{
		"type":        "match_created",
		"match_id":    matchID,
		"match_token": matchToken,
		"player1":     p1.ID,
		"player2":     p2.ID,
		"stake":       stakeAmount,
	})

	log.Printf("[MANAGER] Created match %s stake=%d session=%d", matchID, stakeAmount, session.SessionID)
	session.Start()
	return session, nil
}

// CreateTestMatch builds an ephemeral match with generated players. No DB
// row is written, so no settlement runs at the end.
func (mm *MatchManager) CreateTestMatch(player1Name, player2Name string, stakeAmount int) (*MatchSession, error) {
	p1 := PairedPlayer{
		ID:          "p1_" + generateToken(4),
		DisplayName: player1Name,
		PlayerToken: generateToken(16),
	}
	p2 := PairedPlayer{
		ID:          "p2_" + generateToken(4),
		DisplayName: player2Name,
		PlayerToken: generateToken(16),
	}
	return mm.CreateMatch(p1, p2, stakeAmount)
}

// GetMatch returns a live match by ID.
func (mm *MatchManager) GetMatch(matchID string) (*MatchSession, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if s, ok := mm.matches[matchID]; ok {
		return s, nil
	}
	return nil, errors.New("match not found")
}

// GetMatchByToken returns a live match by its shared token.
func (mm *MatchManager) GetMatchByToken(token string) (*MatchSession, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if id, ok := mm.byToken[token]; ok {
		if s, ok := mm.matches[id]; ok {
			return s, nil
		}
	}
	return nil, errors.New("match not found")
}

// GetMatchForPlayer returns the live match a player belongs to.
func (mm *MatchManager) GetMatchForPlayer(playerID string) (*MatchSession, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if id, ok := mm.playerToMatch[playerID]; ok {
		if s, ok := mm.matches[id]; ok {
			return s, nil
		}
	}
	return nil, errors.New("no match for player")
}

// AuthorizePlayer resolves a match token + per-player token pair to a
// participant. Both tokens must match.
func (mm *MatchManager) AuthorizePlayer(matchToken, playerToken string) (*MatchSession, string, error) {
	session, err := mm.GetMatchByToken(matchToken)
	if err != nil {
		return nil, "", err
	}
	if session.Player1.PlayerToken == playerToken {
		return session, session.Player1.ID, nil
	}
	if session.Player2.PlayerToken == playerToken {
		return session, session.Player2.ID, nil
	}
	return nil, "", errors.New("invalid player token")
}

// ActiveMatchCount returns how many matches are currently registered.
func (mm *MatchManager) ActiveMatchCount() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.matches)
}

// removeMatch drops a session from all indexes and clears its Redis cache.
func (mm *MatchManager) removeMatch(s *MatchSession) {
	mm.mu.Lock()
	delete(mm.matches, s.ID)
	delete(mm.byToken, s.Token)
	delete(mm.playerToMatch, s.Player1.ID)
	delete(mm.playerToMatch, s.Player2.ID)
	mm.mu.Unlock()

	if mm.rdb != nil {
		mm.rdb.Del(context.Background(), "match:"+s.Token+":state")
	}
	log.Printf("[MANAGER] Removed match %s", s.ID)
}

// MarkSessionStarted updates the session row to IN_PROGRESS when the
// countdown completes.
func (mm *MatchManager) MarkSessionStarted(s *MatchSession) {
	mm.saveMatchToRedis(s)
	if mm.db == nil || s.SessionID == 0 {
		return
	}
	_, err := mm.db.Exec(`UPDATE game_sessions SET status='IN_PROGRESS', started_at = COALESCE(started_at, NOW()) WHERE id=$1`, s.SessionID)
	if err != nil {
		log.Printf("[DB] Failed to mark session %d as IN_PROGRESS: %v", s.SessionID, err)
	}
}

// CancelMatch persists a cancelled session and removes it immediately. The
// match never became live, so nothing is retained for reconnection.
func (mm *MatchManager) CancelMatch(s *MatchSession) {
	if mm.db != nil && s.SessionID != 0 {
		_, err := mm.db.Exec(`UPDATE game_sessions SET status='CANCELLED', completed_at=NOW() WHERE id=$1`, s.SessionID)
		if err != nil {
			log.Printf("[DB] Failed to mark session %d as CANCELLED: %v", s.SessionID, err)
		}
	}
	mm.publishMatchEvent(map[string]interface{}{
		"type":     "match_cancelled",
		"match_id": s.ID,
		"reason":   "Not all players readied up in time",
	})
	mm.removeMatch(s)
}

// FinalizeMatch persists the outcome, runs settlement, and schedules the
// session's removal after the retention window so late reconnects can still
// read the result.
func (mm *MatchManager) FinalizeMatch(s *MatchSession) {
	mm.saveMatchToRedis(s)
	mm.saveFinalMatchState(s)
	mm.settle(s)

	winner, _ := s.WinnerLoser()
	mm.publishMatchEvent(map[string]interface{}{
		"type":     "match_finished",
		"match_id": s.ID,
		"winner":   winner.ID,
		"win_type": s.WinType,
	})

	retention := time.Duration(mm.config.MatchRetentionSecs) * time.Second
	time.AfterFunc(retention, func() {
		mm.removeMatch(s)
	})
}

// saveFinalMatchState persists the final state JSON and updates the session
// row and player stats.
func (mm *MatchManager) saveFinalMatchState(s *MatchSession) {
	if mm.db == nil || s.SessionID == 0 {
		return
	}

	snap := s.CurrentSnapshot()
	log.Printf("[DB] saveFinalMatchState session=%d winner=%d win_type=%s", s.SessionID, snap.Winner, s.WinType)

	data, err := json.Marshal(s.Record())
	if err != nil {
		log.Printf("[DB] Failed to marshal final state for session %d: %v", s.SessionID, err)
		return
	}
	if _, err := mm.db.Exec(`INSERT INTO game_states (session_id, game_state, created_at) VALUES ($1, $2::jsonb, NOW())`, s.SessionID, string(data)); err != nil {
		log.Printf("[DB] Failed to insert game_states for session %d: %v", s.SessionID, err)
	}

	winner, _ := s.WinnerLoser()
	var winnerParam interface{}
	if winner.DBPlayerID > 0 {
		winnerParam = winner.DBPlayerID
	}
	if _, err := mm.db.Exec(`UPDATE game_sessions SET status='COMPLETED', winner_id=$1, score1=$2, score2=$3, win_type=$4, completed_at=NOW() WHERE id=$5`,
		winnerParam, snap.Score.P1, snap.Score.P2, s.WinType, s.SessionID); err != nil {
		log.Printf("[DB] Failed to update game_sessions for session %d: %v", s.SessionID, err)
	}

	if s.Player1.DBPlayerID > 0 && s.Player2.DBPlayerID > 0 {
		if _, err := mm.db.Exec(`UPDATE players SET total_games_played = total_games_played + 1 WHERE id IN ($1, $2)`,
			s.Player1.DBPlayerID, s.Player2.DBPlayerID); err != nil {
			log.Printf("[DB] Failed to update games_played for session %d: %v", s.SessionID, err)
		}
	}
	if winner.DBPlayerID > 0 {
		if _, err := mm.db.Exec(`UPDATE players SET total_games_won = total_games_won + 1 WHERE id = $1`, winner.DBPlayerID); err != nil {
			log.Printf("[DB] Failed to update winner stats for session %d: %v", s.SessionID, err)
		}
	}
}

// saveMatchToRedis caches a serializable view of the session. The cache is
// read-only diagnostics and recovery data; live sessions are authoritative
// in memory.
func (mm *MatchManager) saveMatchToRedis(s *MatchSession) error {
	if mm.rdb == nil {
		return nil // No Redis client, skip
	}

	ctx := context.Background()
	key := "match:" + s.Token + ":state"

	data, err := json.Marshal(s.Record())
	if err != nil {
		return err
	}

	return mm.rdb.SetEx(ctx, key, data, time.Hour).Err()
}

// publishMatchEvent pushes a lifecycle event onto the match_events channel
// for any listening instance or dashboard.
func (mm *MatchManager) publishMatchEvent(payload map[string]interface{}) {
	if mm.rdb == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[EVENTS] Failed to marshal event: %v", err)
		return
	}
	if err := mm.rdb.Publish(context.Background(), "match_events", b).Err(); err != nil {
		log.Printf("[EVENTS] publish failed: %v", err)
	}
}
