package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// ReadWait is how long a connection may stay silent. Clients ping well within it.
	ReadWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON sends an event with its data.
func WriteJSON(conn *websocket.Conn, event Event, data any) error {
	return WriteTyped(conn, ResponsePayload{Event: event, Data: data})
}

// WriteError sends an error event carrying a stable code and a message.
func WriteError(conn *websocket.Conn, code, msg string) error {
	return WriteTyped(conn, ResponsePayload{
		Event:   EventError,
		Code:    code,
		Message: msg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetReadDeadline(time.Now().Add(ReadWait))
	return conn.ReadJSON(v)
}
