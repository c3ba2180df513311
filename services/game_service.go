// services/game_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/models"
	"github.com/wfunc/simon/room"
	"github.com/wfunc/simon/session"
)

var ErrNotInRoom = errors.New("session is not in a room")

// GameService 处理房间和游戏请求
type GameService struct {
	rooms       *room.Manager
	broadcaster room.Broadcaster
	recorder    room.Recorder
	settings    room.Settings
}

func NewGameService(rooms *room.Manager, broadcaster room.Broadcaster, recorder room.Recorder, settings room.Settings) *GameService {
	return &GameService{
		rooms:       rooms,
		broadcaster: broadcaster,
		recorder:    recorder,
		settings:    settings,
	}
}

// CreateRoom opens a room owned by sess. A session owns at most one room, so any
// room it was in is left first.
func (s *GameService) CreateRoom(sess *session.Session) (*models.CreateRoomReply, error) {
	s.leave(sess)

	roomID := uuid.New().String()
	r, err := s.rooms.CreateRoom(roomID, sess, s.settings, s.broadcaster, s.recorder)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	logger.Log.Infof("Session %s created room %s", sess.GetID(), roomID)

	return &models.CreateRoomReply{RoomID: r.ID, Symbols: r.Symbols()}, nil
}

// JoinRoom adds sess to roomID as a spectator.
func (s *GameService) JoinRoom(sess *session.Session, roomID string) (*models.JoinRoomReply, error) {
	r, exists := s.rooms.GetRoom(roomID)
	if !exists {
		return nil, room.ErrRoomNotFound
	}
	if sess.Room() == roomID {
		return s.joinReply(r, sess), nil
	}

	s.leave(sess)
	if err := r.AddPlayer(sess); err != nil {
		return nil, err
	}
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), roomID)

	return s.joinReply(r, sess), nil
}

func (s *GameService) joinReply(r *room.Room, sess *session.Session) *models.JoinRoomReply {
	return &models.JoinRoomReply{
		RoomID:    r.ID,
		Symbols:   r.Symbols(),
		Spectator: r.OwnerID != sess.GetID(),
		State:     r.Snapshot(),
	}
}

// LeaveRoom detaches sess from its room. When the owner leaves the room is closed.
func (s *GameService) LeaveRoom(sess *session.Session) error {
	if sess.Room() == "" {
		return ErrNotInRoom
	}
	s.leave(sess)
	return nil
}

func (s *GameService) leave(sess *session.Session) {
	roomID := sess.Room()
	if roomID == "" {
		return
	}
	r, exists := s.rooms.GetRoom(roomID)
	if !exists {
		sess.SetRoom("")
		return
	}

	if r.OwnerID == sess.GetID() {
		s.rooms.RemoveRoom(roomID)
		logger.Log.Infof("Owner %s left, room %s closed", sess.GetID(), roomID)
		return
	}
	r.RemovePlayer(sess.GetID())
	logger.Log.Infof("Session %s left room %s", sess.GetID(), roomID)
}

func (s *GameService) roomOf(sess *session.Session) (*room.Room, error) {
	roomID := sess.Room()
	if roomID == "" {
		return nil, ErrNotInRoom
	}
	r, exists := s.rooms.GetRoom(roomID)
	if !exists {
		return nil, room.ErrRoomNotFound
	}
	return r, nil
}

// StartGame starts or restarts the game in the owner's room.
func (s *GameService) StartGame(sess *session.Session) (game.Snapshot, error) {
	r, err := s.roomOf(sess)
	if err != nil {
		return game.Snapshot{}, err
	}
	return r.Start(sess.GetID())
}

func (s *GameService) Activate(sess *session.Session, symbol string) (*models.ActivateReply, error) {
	r, err := s.roomOf(sess)
	if err != nil {
		return nil, err
	}
	outcome, err := r.Activate(sess.GetID(), symbol)
	if err != nil {
		return nil, err
	}
	return &models.ActivateReply{Symbol: symbol, Outcome: outcome}, nil
}

func (s *GameService) RoomSnapshot(roomID string) (game.Snapshot, error) {
	r, exists := s.rooms.GetRoom(roomID)
	if !exists {
		return game.Snapshot{}, room.ErrRoomNotFound
	}
	return r.Snapshot(), nil
}

func (s *GameService) RoomInfo(roomID string) (*models.RoomInfo, error) {
	r, exists := s.rooms.GetRoom(roomID)
	if !exists {
		return nil, room.ErrRoomNotFound
	}
	info := r.Info()
	return &info, nil
}

func (s *GameService) ListRooms() []models.RoomInfo {
	rooms := s.rooms.Rooms()
	infos := make([]models.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Info())
	}
	return infos
}

func (s *GameService) RoomCount() int {
	return s.rooms.Count()
}
