package websocket

import (
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Event names delivered on a user's private channel.
const (
	EventMessageSent  = "message.sent"
	EventMessagesRead = "messages.read"
)

// UserChannel is the private push channel name for one user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
}

// Frame is the wire shape of one push event.
type Frame struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

type delivery struct {
	userID int64
	frame  *Frame
}

var clients = make(map[int64]map[*websocket.Conn]struct{})
var clientsMu sync.RWMutex
var Register = make(chan *Client)
var Unregister = make(chan *Client)
var deliveries = make(chan *delivery, 64)

// Publish queues an event for every open socket of the given user.
// It never blocks the caller; if the hub is saturated the frame is dropped
// and the client catches up through its next refetch.
func Publish(userID int64, event string, data map[string]any) {
	d := &delivery{
		userID: userID,
		frame:  &Frame{Channel: UserChannel(userID), Event: event, Data: data},
	}
	select {
	case deliveries <- d:
	default:
		log.Printf("Hub saturated, dropping %s frame for user %d", event, userID)
	}
}

func RunHub() {
	for {
		select {
		case client := <-Register:
			log.Printf("Client registered: %d", client.UserID)
			clientsMu.Lock()
			if clients[client.UserID] == nil {
				clients[client.UserID] = make(map[*websocket.Conn]struct{})
			}
			clients[client.UserID][client.Conn] = struct{}{}
			clientsMu.Unlock()

		case client := <-Unregister:
			log.Printf("Client unregistered: %d", client.UserID)
			clientsMu.Lock()
			if conns, ok := clients[client.UserID]; ok {
				delete(conns, client.Conn)
				if len(conns) == 0 {
					delete(clients, client.UserID)
				}
			}
			clientsMu.Unlock()

		case d := <-deliveries:
			clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(clients[d.userID]))
			for conn := range clients[d.userID] {
				conns = append(conns, conn)
			}
			clientsMu.RUnlock()

			for _, conn := range conns {
				if err := conn.WriteJSON(d.frame); err != nil {
					log.Printf("Error sending %s frame to user %d: %v", d.frame.Event, d.userID, err)
					conn.Close()
					clientsMu.Lock()
					if conns, ok := clients[d.userID]; ok {
						delete(conns, conn)
						if len(conns) == 0 {
							delete(clients, d.userID)
						}
					}
					clientsMu.Unlock()
				}
			}
		}
	}
}
