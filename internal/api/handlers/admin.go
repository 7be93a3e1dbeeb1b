package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/admin"
	"github.com/playrally/backend/internal/config"
	"github.com/playrally/backend/internal/game"
	"github.com/playrally/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const adminSessionTTL = 4 * time.Hour
const adminCookieName = "admin_session"

// AdminLogin validates credentials and creates a session cookie
func AdminLogin(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		username := strings.TrimSpace(req.Username)
		password := strings.TrimSpace(req.Password)

		adminAcc, err := admin.ValidateAdminCredentials(db, username, password)
		if err != nil {
			log.Printf("[ADMIN] Login failed for username %s: %v", username, err)
			admin.LogAdminAction(db, username, c.ClientIP(), "/api/v1/admin/login", "login", map[string]interface{}{"username": username}, false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		tokenBytes := make([]byte, 32)
		if _, err := rand.Read(tokenBytes); err != nil {
			log.Printf("[ADMIN] Failed to generate session token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		sessionToken := hex.EncodeToString(tokenBytes)

		ctx := context.Background()
		sessionKey := fmt.Sprintf("admin_session:%s", sessionToken)
		sessionData := map[string]interface{}{
			"username":   adminAcc.Username,
			"expires_at": time.Now().Add(adminSessionTTL).Unix(),
		}
		sessionJSON, _ := json.Marshal(sessionData)
		if err := rdb.Set(ctx, sessionKey, sessionJSON, adminSessionTTL).Err(); err != nil {
			log.Printf("[ADMIN] Failed to store session: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		secure := cfg.Environment == "production"
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, sessionToken, int(adminSessionTTL.Seconds()), "/api/v1/admin", "", secure, true)

		admin.LogAdminAction(db, username, c.ClientIP(), "/api/v1/admin/login", "login_success", map[string]interface{}{"username": username}, true)
		c.JSON(http.StatusOK, gin.H{"ok": true, "display_name": adminAcc.DisplayName})
	}
}

// AdminLogout clears admin session
func AdminLogout(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookieName)
		if err == nil && token != "" {
			ctx := context.Background()
			sessionKey := fmt.Sprintf("admin_session:%s", token)
			rdb.Del(ctx, sessionKey)
		}

		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, "", -1, "/api/v1/admin", "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// AdminMe returns the current admin session info
func AdminMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("admin_username")
		c.JSON(http.StatusOK, gin.H{"username": username})
	}
}

// AdminSessionMiddleware validates admin session from cookie
func AdminSessionMiddleware(rdb *redis.Client, db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookieName)
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		ctx := context.Background()
		sessionKey := fmt.Sprintf("admin_session:%s", token)
		sessionJSON, err := rdb.Get(ctx, sessionKey).Result()
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		var sessionData map[string]interface{}
		if err := json.Unmarshal([]byte(sessionJSON), &sessionData); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			c.Abort()
			return
		}

		if username, ok := sessionData["username"].(string); ok {
			c.Set("admin_username", username)
		}

		c.Next()
	}
}

// GetAdminStats returns headline platform numbers
func GetAdminStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := gin.H{}

		var totalPlayers, totalSessions, completedSessions int
		if err := db.Get(&totalPlayers, `SELECT COUNT(*) FROM players`); err == nil {
			stats["total_players"] = totalPlayers
		}
		if err := db.Get(&totalSessions, `SELECT COUNT(*) FROM game_sessions`); err == nil {
			stats["total_sessions"] = totalSessions
		}
		if err := db.Get(&completedSessions, `SELECT COUNT(*) FROM game_sessions WHERE status='COMPLETED'`); err == nil {
			stats["completed_sessions"] = completedSessions
		}

		var totalStaked, totalPaidOut float64
		if err := db.Get(&totalStaked, `SELECT COALESCE(SUM(amount),0) FROM escrow_ledger WHERE entry_type='STAKE'`); err == nil {
			stats["total_staked"] = totalStaked
		}
		if err := db.Get(&totalPaidOut, `SELECT COALESCE(SUM(amount),0) FROM escrow_ledger WHERE entry_type='PAYOUT'`); err == nil {
			stats["total_paid_out"] = totalPaidOut
		}

		if game.Manager != nil {
			stats["live_matches"] = game.Manager.ActiveMatchCount()
		}

		c.JSON(http.StatusOK, stats)
	}
}

// GetAdminAccounts returns list of ledger accounts and their balances
func GetAdminAccounts(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var accts []models.Account
		err := db.Select(&accts, `SELECT id, account_type, owner_player_id, balance, created_at, updated_at FROM accounts ORDER BY account_type, id`)
		if err != nil {
			log.Printf("[ADMIN] Failed to list accounts: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accts})
	}
}

// GetAdminAuditLog returns recent admin actions
func GetAdminAuditLog(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		logs, err := admin.GetAdminAuditLogs(db, limit, offset)
		if err != nil {
			log.Printf("[ADMIN] Failed to load audit logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}
