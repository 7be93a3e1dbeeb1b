package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/models"
)

// GetPlayerProfile returns a player's public profile by public id
func GetPlayerProfile(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicID := c.Param("id")

		var p models.Player
		err := db.Get(&p, `SELECT id, public_id, display_name, skin, created_at, total_games_played, total_games_won, total_winnings, is_active, is_blocked, block_reason, disconnect_count, last_active FROM players WHERE public_id=$1`, publicID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"public_id":    p.PublicID,
			"display_name": p.DisplayName,
			"skin":         p.Skin,
			"games_played": p.TotalGamesPlayed,
			"games_won":    p.TotalGamesWon,
		})
	}
}

// UpdatePlayerProfile lets an authenticated player change display name and skin
func UpdatePlayerProfile(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetInt("player_id")
		if playerID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var req struct {
			DisplayName string `json:"display_name"`
			Skin        string `json:"skin"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		displayName := strings.TrimSpace(req.DisplayName)
		if displayName == "" || len(displayName) > 32 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name must be 1-32 characters"})
			return
		}
		skin := strings.TrimSpace(req.Skin)
		if skin == "" {
			skin = "classic"
		}

		if _, err := db.Exec(`UPDATE players SET display_name=$1, skin=$2, last_active=NOW() WHERE id=$3`, displayName, skin, playerID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"display_name": displayName, "skin": skin})
	}
}

// GetPlayerStats returns an authenticated player's own record, including
// winnings and recent sessions
func GetPlayerStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetInt("player_id")
		if playerID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var p models.Player
		err := db.Get(&p, `SELECT id, public_id, display_name, skin, created_at, total_games_played, total_games_won, total_winnings, is_active, is_blocked, block_reason, disconnect_count, last_active FROM players WHERE id=$1`, playerID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}

		var recent []models.GameSession
		db.Select(&recent, `SELECT id, match_token, player1_id, player2_id, stake_amount, status, winner_id, score1, score2, win_type, created_at, started_at, completed_at
			FROM game_sessions WHERE player1_id=$1 OR player2_id=$1 ORDER BY created_at DESC LIMIT 10`, playerID)

		c.JSON(http.StatusOK, gin.H{
			"player":          p,
			"recent_sessions": recent,
		})
	}
}
