// models/models.go
package models

import (
	"github.com/wfunc/simon/game"
)

// CreateRoomReply is sent to the owner after a room is created.
type CreateRoomReply struct {
	RoomID  string   `json:"room_id"`
	Symbols []string `json:"symbols"`
}

// JoinRoomRequest asks to watch an existing room.
type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
}

// JoinRoomReply confirms a join. The spectator's symbol controls stay disabled.
type JoinRoomReply struct {
	RoomID    string        `json:"room_id"`
	Symbols   []string      `json:"symbols"`
	Spectator bool          `json:"spectator"`
	State     game.Snapshot `json:"state"`
}

// ActivateRequest carries one symbol click.
type ActivateRequest struct {
	Symbol string `json:"symbol"`
}

// ActivateReply tells the clicking player what the activation did.
type ActivateReply struct {
	Symbol  string       `json:"symbol"`
	Outcome game.Outcome `json:"outcome"`
}

// StateMessage is pushed after every game state change.
type StateMessage struct {
	RoomID string        `json:"room_id"`
	State  game.Snapshot `json:"state"`
}

// CueMessage asks clients to play a sound.
type CueMessage struct {
	Cue   string `json:"cue"`
	Sound string `json:"sound,omitempty"`
}

// HighlightMessage switches a symbol's visual state.
type HighlightMessage struct {
	Symbol string `json:"symbol"`
	Active bool   `json:"active"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

// RoomInfo 房间概要信息
type RoomInfo struct {
	RoomID     string `json:"room_id"`
	OwnerID    string `json:"owner_id"`
	Phase      string `json:"phase"`
	Score      int    `json:"score"`
	Round      int    `json:"round"`
	Spectators int    `json:"spectators"`
}
