package game

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/playrally/backend/internal/accounts"
)

// SettlementResult carries the payout breakdown reported to clients.
type SettlementResult struct {
	SessionID   int     `json:"session_id"`
	Reference   string  `json:"reference"`
	Pot         float64 `json:"pot"`
	WinnerShare float64 `json:"winner_share"`
	Commission  float64 `json:"commission"`
}

// settle runs the winner payout and reports the result to both players.
// Settlement failure never reopens the match: the outcome stays final and
// the failure is surfaced as its own event for reconciliation.
func (mm *MatchManager) settle(s *MatchSession) {
	if s.StakeAmount <= 0 || s.SessionID == 0 {
		return
	}

	winner, _ := s.WinnerLoser()
	if winner.DBPlayerID == 0 {
		log.Printf("[SETTLE] session %d has no winner DB id, skipping payout", s.SessionID)
		return
	}

	result, err := mm.ProcessWinnerPayout(s.SessionID, winner.DBPlayerID, s.StakeAmount)
	if err != nil {
		log.Printf("[SETTLE] Payout failed for session %d: %v", s.SessionID, err)
		if s.hub != nil {
			s.hub.BroadcastToMatch(s.ID, map[string]interface{}{
				"type":    "settlement_failed",
				"message": "Payout could not be processed and will be retried by support",
			})
		}
		return
	}

	if _, err := mm.db.Exec(`UPDATE players SET total_winnings = total_winnings + $1 WHERE id = $2`,
		result.WinnerShare, winner.DBPlayerID); err != nil {
		log.Printf("[SETTLE] Failed to update winner winnings for session %d: %v", s.SessionID, err)
	}

	if s.hub != nil {
		s.hub.BroadcastToMatch(s.ID, map[string]interface{}{
			"type":             "settlement_succeeded",
			"winner":           winner.ID,
			"payout_reference": result.Reference,
			"winner_share":     result.WinnerShare,
			"commission":       result.Commission,
		})
	}
}

// ReserveStakes moves both players' stakes from their wallets into escrow,
// recording STAKE ledger entries. Idempotent per session. Failure aborts the
// whole reservation; a match is never created half-funded.
func (mm *MatchManager) ReserveStakes(sessionID, p1PlayerID, p2PlayerID, stakeAmount int) error {
	if mm.db == nil {
		return fmt.Errorf("db not available")
	}

	tx, err := mm.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var cnt int
	if err := tx.Get(&cnt, `SELECT COUNT(*) FROM escrow_ledger WHERE session_id=$1 AND entry_type='STAKE'`, sessionID); err != nil {
		return fmt.Errorf("failed to check existing stakes: %w", err)
	}
	if cnt > 0 {
		log.Printf("[SETTLE] Stakes already reserved for session %d", sessionID)
		return nil
	}

	escrowAcc, err := accounts.GetOrCreateAccount(mm.db, accounts.AccountEscrow, nil)
	if err != nil {
		return fmt.Errorf("failed to get escrow account: %w", err)
	}

	amount := float64(stakeAmount)
	sessionRef := sql.NullInt64{Int64: int64(sessionID), Valid: true}

	for _, playerID := range []int{p1PlayerID, p2PlayerID} {
		pid := playerID
		walletAcc, err := accounts.GetOrCreateAccount(mm.db, accounts.AccountPlayerWallet, &pid)
		if err != nil {
			return fmt.Errorf("failed to get wallet for player %d: %w", pid, err)
		}
		if err := accounts.Transfer(tx, walletAcc.ID, escrowAcc.ID, amount, "SESSION", sessionRef, "Stake reservation"); err != nil {
			return fmt.Errorf("failed to reserve stake for player %d: %w", pid, err)
		}
		if _, err := tx.Exec(`INSERT INTO escrow_ledger (session_id, entry_type, player_id, amount, balance_after, description, created_at) VALUES ($1,'STAKE',$2,$3,$4,$5,NOW())`,
			sessionID, pid, amount, 0.0, "Stake into escrow"); err != nil {
			return fmt.Errorf("failed to insert escrow ledger entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	log.Printf("[SETTLE] Reserved %.2f x2 into escrow for session %d", amount, sessionID)
	return nil
}

// ProcessWinnerPayout handles the escrow → winnings payout with the platform
// commission deducted. Idempotent per session: a second call finds the
// existing PAYOUT ledger entry and returns it instead of paying twice.
func (mm *MatchManager) ProcessWinnerPayout(sessionID, winnerPlayerID, stakeAmount int) (*SettlementResult, error) {
	if mm.db == nil {
		return nil, fmt.Errorf("db not available")
	}

	pot := float64(stakeAmount * 2) // Full pot (both players' stakes)
	commissionRate := float64(mm.config.CommissionPercentage) / 100.0
	commission := pot * commissionRate
	winnerShare := pot - commission
	reference := fmt.Sprintf("PAYOUT-%d", sessionID)

	tx, err := mm.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// Idempotency check: skip if payout already processed
	var cnt int
	if err := tx.Get(&cnt, `SELECT COUNT(*) FROM escrow_ledger WHERE session_id=$1 AND entry_type='PAYOUT'`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to check existing payouts: %w", err)
	}
	if cnt > 0 {
		log.Printf("[SETTLE] Payout already processed for session %d", sessionID)
		return &SettlementResult{
			SessionID:   sessionID,
			Reference:   reference,
			Pot:         pot,
			WinnerShare: winnerShare,
			Commission:  commission,
		}, nil
	}

	// Get accounts
	escrowAcc, err := accounts.GetOrCreateAccount(mm.db, accounts.AccountEscrow, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow account: %w", err)
	}

	platformAcc, err := accounts.GetOrCreateAccount(mm.db, accounts.AccountPlatform, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get platform account: %w", err)
	}

	winningsAcc, err := accounts.GetOrCreateAccount(mm.db, accounts.AccountPlayerWinnings, &winnerPlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player winnings account: %w", err)
	}

	sessionRef := sql.NullInt64{Int64: int64(sessionID), Valid: true}

	// Transfer: ESCROW → PLATFORM (commission)
	if err := accounts.Transfer(tx, escrowAcc.ID, platformAcc.ID, commission, "SESSION", sessionRef, "Payout commission"); err != nil {
		return nil, fmt.Errorf("failed to transfer commission: %w", err)
	}

	// Transfer: ESCROW → PLAYER_WINNINGS (pot less commission)
	if err := accounts.Transfer(tx, escrowAcc.ID, winningsAcc.ID, winnerShare, "SESSION", sessionRef, "Winner payout"); err != nil {
		return nil, fmt.Errorf("failed to transfer winnings: %w", err)
	}

	// Record in escrow ledger
	if _, err := tx.Exec(`INSERT INTO escrow_ledger (session_id, entry_type, player_id, amount, balance_after, description, created_at) VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
		sessionID, "PAYOUT", winnerPlayerID, winnerShare, 0.0, "Winner payout"); err != nil {
		return nil, fmt.Errorf("failed to insert escrow ledger entry: %w", err)
	}

	// Record the player-facing transaction
	if _, err := tx.Exec(`INSERT INTO transactions (player_id, transaction_type, amount, reference, status, created_at, completed_at) VALUES ($1,'PAYOUT',$2,$3,'COMPLETED',NOW(),NOW())`,
		winnerPlayerID, winnerShare, reference); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tx: %w", err)
	}

	log.Printf("[SETTLE] Paid %.2f of %.2f pot to player %d for session %d", winnerShare, pot, winnerPlayerID, sessionID)

	return &SettlementResult{
		SessionID:   sessionID,
		Reference:   reference,
		Pot:         pot,
		WinnerShare: winnerShare,
		Commission:  commission,
	}, nil
}
