package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/config"
	"github.com/playrally/backend/internal/game"
	"github.com/redis/go-redis/v9"
)

type matchPlayerView struct {
	ID          int    `db:"id"`
	PublicID    string `db:"public_id"`
	DisplayName string `db:"display_name"`
	Skin        string `db:"skin"`
	IsActive    bool   `db:"is_active"`
	IsBlocked   bool   `db:"is_blocked"`
}

// CreateMatch is the matchmaking boundary: it takes two already-chosen
// players and a stake, reserves the stakes in escrow, and builds the live
// session. Opponent selection itself happens upstream of this endpoint.
func CreateMatch(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Player1PublicID string `json:"player1_public_id" binding:"required"`
			Player2PublicID string `json:"player2_public_id" binding:"required"`
			StakeAmount     int    `json:"stake_amount"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player1_public_id and player2_public_id required"})
			return
		}
		if req.Player1PublicID == req.Player2PublicID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "players must differ"})
			return
		}
		if req.StakeAmount < 0 || (req.StakeAmount > 0 && req.StakeAmount < cfg.MinStakeAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stake amount"})
			return
		}

		load := func(publicID string) (*matchPlayerView, bool) {
			var p matchPlayerView
			err := db.Get(&p, `SELECT id, public_id, display_name, skin, is_active, is_blocked FROM players WHERE public_id=$1`, publicID)
			if err != nil {
				return nil, false
			}
			return &p, true
		}

		p1, ok := load(req.Player1PublicID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "player1 not found"})
			return
		}
		p2, ok := load(req.Player2PublicID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "player2 not found"})
			return
		}
		for _, p := range []*matchPlayerView{p1, p2} {
			if !p.IsActive || p.IsBlocked {
				c.JSON(http.StatusForbidden, gin.H{"error": "player not eligible", "player": p.PublicID})
				return
			}
		}
		if _, err := game.Manager.GetMatchForPlayer(p1.PublicID); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "player1 already in a match"})
			return
		}
		if _, err := game.Manager.GetMatchForPlayer(p2.PublicID); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "player2 already in a match"})
			return
		}

		session, err := game.Manager.CreateMatch(
			game.PairedPlayer{ID: p1.PublicID, DBPlayerID: p1.ID, DisplayName: p1.DisplayName, Skin: p1.Skin},
			game.PairedPlayer{ID: p2.PublicID, DBPlayerID: p2.ID, DisplayName: p2.DisplayName, Skin: p2.Skin},
			req.StakeAmount,
		)
		if err != nil {
			log.Printf("[API] CreateMatch failed: %v", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"match_id":      session.ID,
			"match_token":   session.Token,
			"session_id":    session.SessionID,
			"stake_amount":  session.StakeAmount,
			"player1_token": session.Player1.PlayerToken,
			"player2_token": session.Player2.PlayerToken,
		})
	}
}

// CreateTestMatch builds a throwaway match with generated players. Dev only.
func CreateTestMatch(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Environment == "production" {
			c.JSON(http.StatusForbidden, gin.H{"error": "not available in production"})
			return
		}

		var req struct {
			Player1Name string `json:"player1_name"`
			Player2Name string `json:"player2_name"`
		}
		c.BindJSON(&req)
		if req.Player1Name == "" {
			req.Player1Name = "Tester 1"
		}
		if req.Player2Name == "" {
			req.Player2Name = "Tester 2"
		}

		session, err := game.Manager.CreateTestMatch(req.Player1Name, req.Player2Name, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"match_id":      session.ID,
			"match_token":   session.Token,
			"player1_id":    session.Player1.ID,
			"player1_token": session.Player1.PlayerToken,
			"player2_id":    session.Player2.ID,
			"player2_token": session.Player2.PlayerToken,
		})
	}
}

// GetMatchState returns the caller's view of a match, keyed by match token
// plus the per-player token.
func GetMatchState() gin.HandlerFunc {
	return func(c *gin.Context) {
		matchToken := c.Param("token")
		playerToken := c.Query("pt")
		if playerToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pt required"})
			return
		}

		session, playerID, err := game.Manager.AuthorizePlayer(matchToken, playerToken)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}

		c.JSON(http.StatusOK, session.GetStateForPlayer(playerID))
	}
}
