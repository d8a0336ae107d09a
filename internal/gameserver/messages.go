package gameserver

import "github.com/cory-johannsen/town/internal/game/world"

// Outbound websocket message types.
const (
	MsgNewPlayer             = "newPlayer"
	MsgPlayerMoved           = "playerMoved"
	MsgPlayerDisconnect      = "playerDisconnect"
	MsgConversationUpdated   = "conversationUpdated"
	MsgConversationDestroyed = "conversationDestroyed"
	MsgTownClosing           = "townClosing"
)

// MsgPlayerMovement is the only inbound websocket message type.
const MsgPlayerMovement = "playerMovement"

// ServerMessage is one event pushed to a subscribed client.
type ServerMessage struct {
	Type             string                  `json:"type"`
	Player           *world.Player           `json:"player,omitempty"`
	ConversationArea *world.ConversationArea `json:"conversationArea,omitempty"`
}

// ClientMessage is one message received from a subscribed client.
type ClientMessage struct {
	Type     string          `json:"type"`
	Location *world.Location `json:"location,omitempty"`
}
