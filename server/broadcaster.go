/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Broadcaster pushes flush/compaction/remember notifications to every
// connected websocket client. Grounded on scm/network.go's "websocket"
// builtin: an Upgrader with CheckOrigin always true and a read loop
// that exits cleanly on *websocket.CloseError, generalized from one
// scheme-callback-per-connection into one shared fan-out write.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

type notification struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// ServeWS upgrades r to a websocket connection and registers it for
// future Notify calls until the client disconnects.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer b.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}

// Notify pushes {event, payload} to every connected client, dropping
// (and closing) any connection whose write fails instead of letting
// one dead client block the rest.
func (b *Broadcaster) Notify(event string, payload any) {
	msg, err := json.Marshal(notification{Event: event, Payload: payload})
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			delete(b.conns, conn)
			conn.Close()
		}
	}
}

// Len reports how many clients are currently connected.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}
