package rpc

import (
	"errors"
	"net"
	netrpc "net/rpc"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/network"
	"github.com/wfunc/simon/room"
	"github.com/wfunc/simon/services"
	"github.com/wfunc/simon/session"
)

type MockBroadcaster struct{}

func (MockBroadcaster) BroadcastToRoom(string, uint16, []byte) error { return nil }

type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestAdminService_OverTCP(t *testing.T) {
	rooms := room.NewRoomManager()
	games := services.NewGameService(rooms, MockBroadcaster{}, nil, room.Settings{Symbols: game.DefaultSymbols, MaxPlayers: 2})
	created, err := games.CreateRoom(session.NewSession("owner", &MockConnection{}))
	if err != nil {
		t.Fatal(err)
	}
	defer rooms.RemoveRoom(created.RoomID)

	srv, err := NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Register(NewAdminService(games)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	go srv.Start()
	defer srv.Stop()

	client, err := netrpc.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	var list ListRoomsReply
	if err := client.Call("AdminService.ListRooms", &ListRoomsArgs{}, &list); err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(list.Rooms) != 1 || list.Rooms[0].RoomID != created.RoomID {
		t.Errorf("Unexpected rooms: %+v", list.Rooms)
	}

	var got GetRoomReply
	if err := client.Call("AdminService.GetRoom", &GetRoomArgs{RoomID: created.RoomID}, &got); err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Room.OwnerID != "owner" || got.Room.Phase != "idle" {
		t.Errorf("Unexpected room: %+v", got.Room)
	}

	err = client.Call("AdminService.GetRoom", &GetRoomArgs{RoomID: "missing"}, &got)
	if err == nil || err.Error() != room.ErrRoomNotFound.Error() {
		t.Errorf("Expected %q, got %v", room.ErrRoomNotFound, err)
	}
}

// flakyListener fails every Accept until it is closed.
type flakyListener struct {
	mu      sync.Mutex
	accepts int
	closed  bool
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepts++
	if l.closed {
		return nil, net.ErrClosed
	}
	return nil, errors.New("too many open files")
}

func (l *flakyListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{} }

func (l *flakyListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepts
}

func TestServer_AcceptErrorsBackOff(t *testing.T) {
	l := &flakyListener{}
	srv := &Server{listener: l, rpc: netrpc.NewServer()}

	done := make(chan struct{})
	go func() {
		srv.Start()
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	if n := l.count(); n > 10 {
		t.Errorf("Accept retried %d times in 100ms without backing off", n)
	}

	srv.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
