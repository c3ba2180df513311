package services

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/network"
	"github.com/wfunc/simon/room"
	"github.com/wfunc/simon/session"
	"github.com/wfunc/simon/state"
)

// MockBroadcaster drops every message.
type MockBroadcaster struct{}

func (MockBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error { return nil }

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func newTestService(maxPlayers int) (*GameService, *room.Manager) {
	rooms := room.NewRoomManager()
	svc := NewGameService(rooms, MockBroadcaster{}, nil, room.Settings{
		Symbols:    game.DefaultSymbols,
		Timings:    game.Timings{Hold: time.Millisecond, Gap: time.Millisecond, InputDelay: time.Millisecond, Settle: time.Millisecond},
		MaxPlayers: maxPlayers,
	})
	return svc, rooms
}

func newTestSession(id string) *session.Session {
	return session.NewSession(id, &MockConnection{})
}

func waitForPhase(t *testing.T, svc *GameService, roomID string, cond func(game.Snapshot) bool) game.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.RoomSnapshot(roomID)
		if err != nil {
			t.Fatalf("RoomSnapshot failed: %v", err)
		}
		if cond(snap) {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("room %s never reached the expected state", roomID)
	return game.Snapshot{}
}

func TestGameService_CreateRoom(t *testing.T) {
	svc, rooms := newTestService(2)
	owner := newTestSession("owner")

	reply, err := svc.CreateRoom(owner)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	defer rooms.RemoveRoom(reply.RoomID)

	if owner.Room() != reply.RoomID {
		t.Errorf("Owner should be in room %s, got %q", reply.RoomID, owner.Room())
	}
	if len(reply.Symbols) != len(game.DefaultSymbols) {
		t.Errorf("Expected %d symbols, got %v", len(game.DefaultSymbols), reply.Symbols)
	}

	// A second room replaces the first.
	second, err := svc.CreateRoom(owner)
	if err != nil {
		t.Fatal(err)
	}
	defer rooms.RemoveRoom(second.RoomID)
	if _, exists := rooms.GetRoom(reply.RoomID); exists {
		t.Error("Previous room should be closed when its owner creates another")
	}
	if svc.RoomCount() != 1 {
		t.Errorf("Expected 1 room, got %d", svc.RoomCount())
	}
}

func TestGameService_JoinRoom(t *testing.T) {
	svc, rooms := newTestService(2)
	owner, watcher, late := newTestSession("owner"), newTestSession("watcher"), newTestSession("late")

	created, _ := svc.CreateRoom(owner)
	defer rooms.RemoveRoom(created.RoomID)

	if _, err := svc.JoinRoom(watcher, "missing"); !errors.Is(err, room.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	reply, err := svc.JoinRoom(watcher, created.RoomID)
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if !reply.Spectator {
		t.Error("Joining session should be a spectator")
	}
	if reply.State.Phase != state.Idle {
		t.Errorf("Expected idle state, got %s", reply.State.Phase)
	}

	if _, err := svc.JoinRoom(late, created.RoomID); !errors.Is(err, room.ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}
}

func TestGameService_LeaveRoom(t *testing.T) {
	svc, rooms := newTestService(3)
	owner, watcher := newTestSession("owner"), newTestSession("watcher")

	if err := svc.LeaveRoom(owner); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}

	created, _ := svc.CreateRoom(owner)
	svc.JoinRoom(watcher, created.RoomID)

	if err := svc.LeaveRoom(watcher); err != nil {
		t.Fatal(err)
	}
	if watcher.Room() != "" {
		t.Error("Spectator should be detached")
	}
	if _, exists := rooms.GetRoom(created.RoomID); !exists {
		t.Error("Room should survive a spectator leaving")
	}

	svc.JoinRoom(watcher, created.RoomID)
	if err := svc.LeaveRoom(owner); err != nil {
		t.Fatal(err)
	}
	if _, exists := rooms.GetRoom(created.RoomID); exists {
		t.Error("Room should close when its owner leaves")
	}
	if watcher.Room() != "" {
		t.Error("Spectators should be detached when the room closes")
	}
}

func TestGameService_PlayOneRound(t *testing.T) {
	svc, rooms := newTestService(2)
	owner, watcher := newTestSession("owner"), newTestSession("watcher")

	created, _ := svc.CreateRoom(owner)
	defer rooms.RemoveRoom(created.RoomID)
	svc.JoinRoom(watcher, created.RoomID)

	if _, err := svc.StartGame(watcher); !errors.Is(err, room.ErrNotOwner) {
		t.Errorf("Spectator must not start the game, got %v", err)
	}
	if _, err := svc.StartGame(owner); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}

	snap := waitForPhase(t, svc, created.RoomID, func(s game.Snapshot) bool {
		return s.Phase == state.AwaitingInput && s.Round == 1
	})

	if _, err := svc.Activate(watcher, string(snap.Sequence[0])); !errors.Is(err, room.ErrNotOwner) {
		t.Errorf("Spectator must not play, got %v", err)
	}

	reply, err := svc.Activate(owner, string(snap.Sequence[0]))
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if reply.Outcome != game.OutcomeRoundComplete {
		t.Errorf("Expected round_complete, got %s", reply.Outcome)
	}

	next := waitForPhase(t, svc, created.RoomID, func(s game.Snapshot) bool {
		return s.Phase == state.AwaitingInput && s.Round == 2
	})
	if next.Score != 1 {
		t.Errorf("Expected score 1, got %d", next.Score)
	}

	infos := svc.ListRooms()
	if len(infos) != 1 || infos[0].Spectators != 1 || infos[0].Score != 1 {
		t.Errorf("Unexpected room listing: %+v", infos)
	}
	info, err := svc.RoomInfo(created.RoomID)
	if err != nil || info.OwnerID != "owner" {
		t.Errorf("Unexpected room info %+v, err %v", info, err)
	}
}

func TestGameService_ActivateOutsideRoom(t *testing.T) {
	svc, _ := newTestService(1)
	if _, err := svc.Activate(newTestSession("lonely"), "red"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}
	if _, err := svc.RoomSnapshot("missing"); !errors.Is(err, room.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}
