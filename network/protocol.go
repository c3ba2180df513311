package network

const (
	MsgTypeHeartbeat  = 1
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeCreateRoom = 103
	MsgTypeStartGame  = 201
	MsgTypeActivate   = 202
	MsgTypeGameState  = 301
	MsgTypeCue        = 302
	MsgTypeHighlight  = 303
	MsgTypeError      = 399
)
