package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playrally/backend/internal/game"
)

// Match message data types
type InputData struct {
	Direction string `json:"direction"`
}

type ChatData struct {
	Text string `json:"text"`
}

// GameHub is the single hub for all matches.
var GameHub *Hub

func init() {
	GameHub = NewHub()
	go runGameHub(GameHub)
}

// HandleWebSocket upgrades a match connection. Both the shared match token
// and the per-player token must check out before the upgrade happens.
func HandleWebSocket(c *gin.Context) {
	matchToken := c.Query("token")
	if matchToken == "" {
		matchToken = c.Param("token")
	}
	playerToken := c.Query("pt")

	if matchToken == "" || playerToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and pt required"})
		return
	}

	session, playerID, err := game.Manager.AuthorizePlayer(matchToken, playerToken)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid match or player token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		playerID:   playerID,
		matchID:    session.ID,
		matchToken: matchToken,
		send:       make(chan []byte, 256),
	}

	GameHub.register <- client

	go client.writePump()
	go client.readPump()
}

// runGameHub owns the client maps. Register swaps in replacement connections
// for the same player; unregister only tears down when the departing client
// is still the current one, so a reconnect racing the old pump's exit never
// drops the new connection.
func runGameHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()

			isReconnect := false
			if oldClient, exists := h.clients[client.playerID]; exists {
				log.Printf("[WS] Player %s reconnecting - closing old connection", client.playerID)
				if err := oldClient.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("Error writing close control to old client %s: %v", oldClient.playerID, err)
				}
				oldClient.conn.Close()
				select {
				case <-oldClient.send:
				default:
					close(oldClient.send)
				}
				delete(h.clients, client.playerID)
				if room, exists := h.matchRooms[oldClient.matchID]; exists {
					delete(room, client.playerID)
				}
				isReconnect = true
			}

			h.clients[client.playerID] = client
			if _, exists := h.matchRooms[client.matchID]; !exists {
				h.matchRooms[client.matchID] = make(map[string]*Client)
			}
			h.matchRooms[client.matchID][client.playerID] = client
			h.mu.Unlock()

			log.Printf("[WS] Player %s connected to match %s", client.playerID, client.matchID)

			session, err := game.Manager.GetMatchByToken(client.matchToken)
			if err != nil {
				log.Printf("[WS] Match not found for token %s: %v", client.matchToken, err)
				continue
			}

			if isReconnect {
				session.HandleReconnect(client.playerID)
			} else {
				session.MarkConnected(client.playerID)
			}

			// Joining client always gets its current view; prediction on the
			// far side resets from this.
			state := session.GetStateForPlayer(client.playerID)
			state["type"] = "match_state"
			h.SendToPlayer(client.playerID, state)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.playerID]; ok && cur == client {
				delete(h.clients, client.playerID)
				if room, exists := h.matchRooms[client.matchID]; exists {
					delete(room, client.playerID)
					if len(room) == 0 {
						delete(h.matchRooms, client.matchID)
					}
				}

				log.Printf("[WS] Player %s disconnected from match %s", client.playerID, client.matchID)

				if session, err := game.Manager.GetMatchByToken(client.matchToken); err == nil {
					session.HandleDisconnect(client.playerID)
				}

				select {
				case <-client.send:
				default:
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// readPump reads messages for match connections.
func (c *Client) readPump() {
	defer func() {
		GameHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for player %s: %v", c.playerID, err)
			} else {
				log.Printf("WebSocket read error for player %s: %v", c.playerID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming match messages.
func (c *Client) handleMessage(msg WSMessage) {
	session, err := game.Manager.GetMatchByToken(c.matchToken)
	if err != nil {
		c.sendError("Match not found")
		return
	}

	switch msg.Type {
	case "ready":
		session.HandleReady(c.playerID)

	case "input":
		var data InputData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return // malformed input is dropped, never answered
		}
		session.HandleInput(c.playerID, game.Direction(data.Direction))

	case "chat":
		var data ChatData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid chat data")
			return
		}
		if !allowChat(c.matchToken, c.playerID) {
			c.sendError("You're sending messages too fast")
			return
		}
		session.HandleChat(c.playerID, data.Text)

	case "concede":
		if session.CurrentPhase() != game.PhaseActive {
			c.sendError("Match is not in progress")
			return
		}
		session.Forfeit(c.playerID, "Player conceded")

	case "get_state":
		state := session.GetStateForPlayer(c.playerID)
		state["type"] = "match_state"
		d, _ := json.Marshal(state)
		select {
		case c.send <- d:
		default:
		}

	default:
		c.sendError("Unknown message type")
	}
}
