package relay

import (
	"encoding/json"
	"log"
	"net/http"

	"stage-manager/internal/socket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type sessionURI struct {
	Session string `uri:"session" binding:"required,ident,max=64"`
}

func (s *Server) handleWebsocket(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri) {
		return
	}
	claims, err := s.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	log.Printf("ws connected session=%s user=%s elevated=%t remote=%s", uri.Session, claims.Subject, claims.Elevated, c.Request.RemoteAddr)
	client := s.hub.Add(uri.Session, claims.Subject, claims.Elevated, conn)
	go s.readWS(client)
}

func (s *Server) readWS(c *client) {
	defer s.hub.Remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected session=%s user=%s error=%v", c.session, c.userID, err)
			return
		}
		var env socket.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ws message dropped session=%s user=%s error=%v", c.session, c.userID, err)
			continue
		}
		if env.Op == "" || env.Op == socket.OpPresence {
			log.Printf("ws message dropped session=%s user=%s op=%q", c.session, c.userID, env.Op)
			continue
		}
		env.Session = c.session
		env.Sender = c.userID
		env.Elevated = c.elevated
		s.hub.Route(c, env)
	}
}
