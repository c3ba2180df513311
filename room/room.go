// room/room.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/models"
	"github.com/wfunc/simon/network"
	"github.com/wfunc/simon/session"
	"github.com/wfunc/simon/state"
)

var (
	ErrNotOwner     = errors.New("only the room owner can play")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotFound = errors.New("room not found")
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// Recorder receives game milestones, usually for metrics.
type Recorder interface {
	GameStarted()
	RoundCompleted(score int)
	GameFinished(score int)
}

type nopRecorder struct{}

func (nopRecorder) GameStarted()       {}
func (nopRecorder) RoundCompleted(int) {}
func (nopRecorder) GameFinished(int)   {}

// Settings are shared by every room of a server.
type Settings struct {
	Symbols    []game.Symbol
	Timings    game.Timings
	Sounds     map[string]string // cue name -> sound URL
	MaxPlayers int               // owner plus spectators
	Clock      game.Clock
}

// Room 是游戏房间的核心结构
// The owner plays; every other session only watches.
type Room struct {
	ID          string
	OwnerID     string
	MaxPlayers  int
	Players     map[string]*session.Session // sessionID -> session
	Controller  *game.Controller
	CreatedAt   time.Time
	sounds      map[string]string
	affordances map[game.Symbol]struct{}
	broadcaster Broadcaster
	recorder    Recorder
	playerMutex sync.RWMutex
}

// NewRoom 创建一个新房间 owned by owner.
func NewRoom(id string, owner *session.Session, settings Settings, broadcaster Broadcaster, recorder Recorder) (*Room, error) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	maxPlayers := settings.MaxPlayers
	if maxPlayers < 1 {
		maxPlayers = 1
	}

	r := &Room{
		ID:          id,
		OwnerID:     owner.GetID(),
		MaxPlayers:  maxPlayers,
		Players:     make(map[string]*session.Session),
		CreatedAt:   time.Now(),
		sounds:      settings.Sounds,
		affordances: make(map[game.Symbol]struct{}),
		broadcaster: broadcaster,
		recorder:    recorder,
	}

	controller, err := game.NewController(game.Options{
		Name:      id,
		Symbols:   settings.Symbols,
		Timings:   settings.Timings,
		Rand:      rand.New(rand.NewPCG(rand.Uint64(), uint64(time.Now().UnixNano()))),
		Presenter: r,
		Listener:  r,
		Clock:     settings.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	r.Controller = controller
	for _, sym := range controller.Symbols() {
		r.affordances[sym] = struct{}{}
	}

	r.Players[owner.GetID()] = owner
	owner.SetRoom(id)
	return r, nil
}

// Symbols returns the room's alphabet as plain strings.
func (r *Room) Symbols() []string {
	symbols := r.Controller.Symbols()
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = string(s)
	}
	return out
}

// --- 房间核心逻辑 ---

// AddPlayer adds a spectator.
func (r *Room) AddPlayer(s *session.Session) error {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if _, exists := r.Players[s.GetID()]; exists {
		return nil
	}
	if len(r.Players) >= r.MaxPlayers {
		return ErrRoomFull
	}

	r.Players[s.GetID()] = s
	s.SetRoom(r.ID)
	return nil
}

// RemovePlayer 从房间移除一个玩家
func (r *Room) RemovePlayer(sessionID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if player, exists := r.Players[sessionID]; exists {
		player.SetRoom("")
		delete(r.Players, sessionID)
	}
}

func (r *Room) GetPlayer(sessionID string) (*session.Session, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	player, exists := r.Players[sessionID]
	return player, exists
}

func (r *Room) PlayerCount() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.Players)
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.Players))
	for _, s := range r.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

// Start (re)starts the game. Only the owner may call it.
func (r *Room) Start(sessionID string) (game.Snapshot, error) {
	if sessionID != r.OwnerID {
		return game.Snapshot{}, ErrNotOwner
	}
	return r.Controller.Start()
}

// Activate forwards the owner's click to the controller.
func (r *Room) Activate(sessionID string, symbol string) (game.Outcome, error) {
	if sessionID != r.OwnerID {
		return game.OutcomeIgnored, ErrNotOwner
	}
	return r.Controller.Activate(game.Symbol(strings.ToLower(strings.TrimSpace(symbol))))
}

func (r *Room) Snapshot() game.Snapshot {
	return r.Controller.Snapshot()
}

// Info summarizes the room for listings.
func (r *Room) Info() models.RoomInfo {
	snap := r.Snapshot()
	return models.RoomInfo{
		RoomID:     r.ID,
		OwnerID:    r.OwnerID,
		Phase:      snap.Phase.String(),
		Score:      snap.Score,
		Round:      snap.Round,
		Spectators: r.PlayerCount() - 1,
	}
}

// Close stops the game and detaches every player.
func (r *Room) Close() {
	r.Controller.Close()

	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()
	for id, player := range r.Players {
		player.SetRoom("")
		delete(r.Players, id)
	}
}

// --- game.Presenter / game.Listener ---

func (r *Room) Play(_ context.Context, cue game.Cue) error {
	return r.broadcast(network.MsgTypeCue, models.CueMessage{
		Cue:   string(cue),
		Sound: r.sounds[string(cue)],
	})
}

func (r *Room) Highlight(_ context.Context, sym game.Symbol, active bool) error {
	if _, ok := r.affordances[sym]; !ok {
		return game.ErrNoAffordance
	}
	return r.broadcast(network.MsgTypeHighlight, models.HighlightMessage{
		Symbol: string(sym),
		Active: active,
	})
}

func (r *Room) StateChanged(snap game.Snapshot) {
	switch {
	case snap.Phase == state.Presenting && snap.Round == 1:
		r.recorder.GameStarted()
	case snap.Phase == state.Presenting:
		r.recorder.RoundCompleted(snap.Score)
	case snap.Phase == state.GameOver:
		r.recorder.GameFinished(snap.Score)
	}

	if err := r.broadcast(network.MsgTypeGameState, models.StateMessage{RoomID: r.ID, State: snap}); err != nil {
		logger.Log.Debugf("room %s: state broadcast: %v", r.ID, err)
	}
}

func (r *Room) broadcast(msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message %d: %w", msgID, err)
	}
	return r.broadcaster.BroadcastToRoom(r.ID, msgID, data)
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(id string, owner *session.Session, settings Settings, broadcaster Broadcaster, recorder Recorder) (*Room, error) {
	room, err := NewRoom(id, owner, settings, broadcaster, recorder)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rooms[id] = room
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间
// Close must run outside m.mutex: pending game callbacks still broadcast via GetRoom.
func (m *Manager) RemoveRoom(id string) bool {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
	return exists
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}
