package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/internal/service"
)

// frame represents a WebSocket frame and its metadata.
type frame struct {
	isFin   bool
	opCode  byte
	length  uint64
	payload []byte
}

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UserInfo identifies the sender of a message. Every client request
// carries it; the server echoes it back on connect.
type UserInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Cell addresses one intersection of the board.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Payload struct {
	User *UserInfo `json:"user,omitempty"`
	Cell *Cell     `json:"cell,omitempty"`

	RoomID   string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
	RoomType string `json:"room_type,omitempty"`
	JoinCode string `json:"join_code,omitempty"`

	Room     *entity.Room       `json:"room,omitempty"`
	Game     *service.GameState `json:"game,omitempty"`
	Presence map[string]bool    `json:"presence,omitempty"`
	Error    string             `json:"error,omitempty"`
}
