package adminapi

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// monitorHub pushes periodic monitor snapshots to connected operator
// dashboards via a register/broadcast/unregister loop. Slow consumers are
// dropped rather than allowed to back up the broadcast.
type monitorHub struct {
	clients    map[*monitorClient]bool
	broadcast  chan []byte
	register   chan *monitorClient
	unregister chan *monitorClient
	mutex      sync.Mutex
}

type monitorClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newMonitorHub() *monitorHub {
	return &monitorHub{
		clients:    make(map[*monitorClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *monitorClient),
		unregister: make(chan *monitorClient),
	}
}

func (h *monitorHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			h.mutex.Unlock()
		case c := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
		case msg := <-h.broadcast:
			h.mutex.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[adminapi] monitor stream upgrade failed: %v", err)
		return
	}

	client := &monitorClient{conn: conn, send: make(chan []byte, 16)}
	s.hub.register <- client

	go func() {
		defer func() {
			s.hub.unregister <- client
			conn.Close()
		}()
		for msg := range client.send {
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
