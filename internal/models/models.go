package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Player represents a user in the system
type Player struct {
	ID               int            `db:"id" json:"id"`
	PublicID         string         `db:"public_id" json:"public_id"`
	DisplayName      string         `db:"display_name" json:"display_name"`
	Skin             string         `db:"skin" json:"skin"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	TotalGamesPlayed int            `db:"total_games_played" json:"total_games_played"`
	TotalGamesWon    int            `db:"total_games_won" json:"total_games_won"`
	TotalWinnings    float64        `db:"total_winnings" json:"total_winnings"`
	IsActive         bool           `db:"is_active" json:"is_active"`
	IsBlocked        bool           `db:"is_blocked" json:"is_blocked"`
	BlockReason      sql.NullString `db:"block_reason" json:"block_reason,omitempty"`
	DisconnectCount  int            `db:"disconnect_count" json:"disconnect_count"`
	LastActive       sql.NullTime   `db:"last_active" json:"last_active,omitempty"`
}

// Transaction represents a money transaction
type Transaction struct {
	ID              int          `db:"id" json:"id"`
	PlayerID        int          `db:"player_id" json:"player_id"`
	TransactionType string       `db:"transaction_type" json:"transaction_type"`
	Amount          float64      `db:"amount" json:"amount"`
	Reference       string       `db:"reference" json:"reference,omitempty"`
	Status          string       `db:"status" json:"status"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	CompletedAt     sql.NullTime `db:"completed_at" json:"completed_at,omitempty"`
}

// GameSession represents one match between two players
type GameSession struct {
	ID          int           `db:"id" json:"id"`
	MatchToken  string        `db:"match_token" json:"match_token"`
	Player1ID   int           `db:"player1_id" json:"player1_id"`
	Player2ID   sql.NullInt64 `db:"player2_id" json:"player2_id,omitempty"`
	StakeAmount float64       `db:"stake_amount" json:"stake_amount"`
	Status      string        `db:"status" json:"status"`
	WinnerID    sql.NullInt64 `db:"winner_id" json:"winner_id,omitempty"`
	Score1      int           `db:"score1" json:"score1"`
	Score2      int           `db:"score2" json:"score2"`
	WinType     string        `db:"win_type" json:"win_type,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime  `db:"started_at" json:"started_at,omitempty"`
	CompletedAt sql.NullTime  `db:"completed_at" json:"completed_at,omitempty"`
}

// Account is one balance-carrying account in the double-entry ledger
type Account struct {
	ID            int           `db:"id" json:"id"`
	AccountType   string        `db:"account_type" json:"account_type"`
	OwnerPlayerID sql.NullInt64 `db:"owner_player_id" json:"owner_player_id,omitempty"`
	Balance       float64       `db:"balance" json:"balance"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// EscrowLedger represents an escrow entry
type EscrowLedger struct {
	ID           int       `db:"id" json:"id"`
	SessionID    int       `db:"session_id" json:"session_id"`
	EntryType    string    `db:"entry_type" json:"entry_type"`
	PlayerID     int       `db:"player_id" json:"player_id"`
	Amount       float64   `db:"amount" json:"amount"`
	BalanceAfter float64   `db:"balance_after" json:"balance_after"`
	Description  string    `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AdminAccount is a dashboard operator login
type AdminAccount struct {
	Username     string         `db:"username" json:"username"`
	DisplayName  string         `db:"display_name" json:"display_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one audit-log row for an admin action
type AdminAudit struct {
	ID            int             `db:"id" json:"id"`
	AdminUsername string          `db:"admin_username" json:"admin_username"`
	IP            string          `db:"ip" json:"ip"`
	Route         string          `db:"route" json:"route"`
	Action        string          `db:"action" json:"action"`
	Details       json.RawMessage `db:"details" json:"details"`
	Success       bool            `db:"success" json:"success"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
