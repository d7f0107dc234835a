package http

import (
	"log"

	"weekly-exam-service/internal/domain"

	"github.com/gin-gonic/gin"
)

type wsMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// leaderboardStream upgrades to a websocket and pushes a fresh board whenever
// a submission lands or the exam is finalized. All writes happen on this
// goroutine; the reader goroutine only watches for the client going away.
func (h *Handler) leaderboardStream(c *gin.Context) {
	examID := c.Param("examId")

	initial, err := h.service.Leaderboard(c.Request.Context(), examID, 0)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Watcher().Subscribe(examID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "leaderboard", Payload: initial}); err != nil {
		return
	}

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "leaderboard", Payload: lb}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
