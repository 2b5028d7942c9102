// handlers/ws.go - Live change stream over WebSocket
package handlers

import (
	"encoding/json"
	"log"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	wsBuffer       = 64
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type wsMessage struct {
	Type   string              `json:"type"`
	Kind   database.ChangeKind `json:"kind"`
	Key    string              `json:"key"`
	Record json.RawMessage     `json:"record,omitempty"`
}

// Topics selects what a connection streams besides the caller's own
// notifications.
type Topics struct {
	UserID      string
	ChallengeID string
	ContestID   string
}

// Watch subscribes to the changes in t and hands each one to send, already
// encoded. Records are encoded on the writing goroutine, before the writer
// can touch them again. The caller must unsubscribe every returned handle.
func Watch(store database.Store, t Topics, send func([]byte)) []*database.Subscription {
	forward := func(ch database.Change) {
		msg := wsMessage{Type: ch.Collection, Kind: ch.Kind, Key: ch.Key}
		if ch.Record != nil {
			raw, err := json.Marshal(ch.Record)
			if err != nil {
				log.Printf("⚠️ Could not encode %s %s: %v", ch.Collection, ch.Key, err)
				return
			}
			msg.Record = raw
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		send(data)
	}

	subs := []*database.Subscription{
		store.OnChange(models.Notification{}.TableName(), func(ch database.Change) {
			if n, ok := ch.Record.(*models.Notification); ok && n.UserID == t.UserID {
				forward(ch)
			}
		}),
	}

	if t.ChallengeID != "" {
		subs = append(subs, store.OnChange(models.TeamChallenge{}.TableName(), func(ch database.Change) {
			if ch.Key == t.ChallengeID {
				forward(ch)
			}
		}))
	}

	if t.ContestID != "" {
		subs = append(subs,
			store.OnChange(models.DailyContest{}.TableName(), func(ch database.Change) {
				if ch.Key == t.ContestID {
					forward(ch)
				}
			}),
			store.OnChange(models.Submission{}.TableName(), func(ch database.Change) {
				if s, ok := ch.Record.(*models.Submission); ok && s.ContestID == t.ContestID {
					forward(ch)
				}
			}),
		)
	}
	return subs
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// StreamChanges pushes the caller's notifications and, with ?challenge= or
// ?contest=, changes to that challenge or contest
// GET /ws
func StreamChanges(conn *websocket.Conn) {
	userID, _ := conn.Locals("userId").(string)
	topics := Topics{
		UserID:      userID,
		ChallengeID: conn.Query("challenge"),
		ContestID:   conn.Query("contest"),
	}

	out := make(chan []byte, wsBuffer)
	subs := Watch(svc.Store, topics, func(data []byte) {
		// Feed callbacks must not block; a slow client loses messages.
		select {
		case out <- data:
		default:
			log.Printf("⚠️ Dropping live update for %s: client too slow", userID)
		}
	})
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("🌐 Live updates connected for %s", userID)
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			log.Printf("🌐 Live updates closed for %s", userID)
			return
		case data := <-out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
