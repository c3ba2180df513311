package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/models"
	"github.com/wfunc/simon/services"
)

// Accept errors back off between these bounds.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
}

// NewServer listens on addr. Services are added with Register before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		rpc:      rpc.NewServer(),
	}, nil
}

func (s *Server) Register(service interface{}) error {
	return s.rpc.Register(service)
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logger.Log.Errorf("RPC server accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes read-only room queries.
// Methods follow the net/rpc signature: exported args, pointer reply, error result.
type AdminService struct {
	games *services.GameService
}

func NewAdminService(games *services.GameService) *AdminService {
	return &AdminService{games: games}
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []models.RoomInfo
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.Rooms = a.games.ListRooms()
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Room models.RoomInfo
}

func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	info, err := a.games.RoomInfo(args.RoomID)
	if err != nil {
		return err
	}
	reply.Room = *info
	return nil
}
