package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrsandeep/collections-go/internal/models"
)

// Subscription is a single job's progress feed.
type Subscription interface {
	Updates() <-chan models.ProgressUpdate
	Close()
}

// ServeJobStream upgrades the request and relays sub to the peer as JSON
// text messages. The peer is pinged every pingPeriod and on every keepalive
// update, so an idle job never starves the read deadline. The connection
// is closed normally after the terminal update. A peer that goes away only
// closes its subscription.
func ServeJobStream(w http.ResponseWriter, r *http.Request, sub Subscription) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		log.Println(err)
		return
	}
	defer conn.Close()
	defer sub.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, ok := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
				conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if u.Type == models.UpdateKeepalive {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}
}
