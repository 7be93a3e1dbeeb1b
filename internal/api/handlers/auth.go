package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"github.com/playrally/backend/internal/config"
)

// RegisterPlayer creates a player record and issues a JWT. Display names are
// free-form; identity is the generated public id.
func RegisterPlayer(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string `json:"display_name" binding:"required"`
			Skin        string `json:"skin"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name required"})
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

		idBytes := make([]byte, 8)
		rand.Read(idBytes)
		publicID := "pl_" + hex.EncodeToString(idBytes)

		var playerID int
		err := db.Get(&playerID, `INSERT INTO players (public_id, display_name, skin, created_at, is_active) VALUES ($1, $2, $3, NOW(), true) RETURNING id`,
			publicID, displayName, skin)
		if err != nil {
			log.Printf("Failed to create player %s: %v", displayName, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		signed, err := issuePlayerToken(cfg, playerID, publicID)
		if err != nil {
			log.Printf("Failed to sign token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": signed,
			"player": gin.H{
				"id":           playerID,
				"public_id":    publicID,
				"display_name": displayName,
				"skin":         skin,
			},
		})
	}
}

// RefreshToken re-issues a JWT for an authenticated player.
func RefreshToken(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetInt("player_id")
		publicID := c.GetString("public_id")

		signed, err := issuePlayerToken(cfg, playerID, publicID)
		if err != nil {
			log.Printf("Failed to sign token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": signed})
	}
}

func issuePlayerToken(cfg *config.Config, playerID int, publicID string) (string, error) {
	exp := time.Now().Add(24 * time.Hour)
	claims := jwt.MapClaims{
		"player_id": playerID,
		"public_id": publicID,
		"exp":       jwt.NewNumericDate(exp).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// PlayerAuthMiddleware validates the Bearer JWT and stows the player
// identity in the request context.
func PlayerAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		parsed, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if id, ok := claims["player_id"].(float64); ok {
			c.Set("player_id", int(id))
		}
		if pub, ok := claims["public_id"].(string); ok {
			c.Set("public_id", pub)
		}

		c.Next()
	}
}
