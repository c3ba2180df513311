package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/simon/broadcast"
	"github.com/wfunc/simon/config"
	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/models"
	"github.com/wfunc/simon/monitor"
	"github.com/wfunc/simon/network"
	"github.com/wfunc/simon/room"
	"github.com/wfunc/simon/rpc"
	"github.com/wfunc/simon/services"
	"github.com/wfunc/simon/session"
	"github.com/wfunc/simon/timer"
)

var ErrUnknownMessage = errors.New("unknown message type")

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	router         *chi.Mux
	httpServer     *http.Server
	roomManager    *room.Manager
	sessionManager *session.Manager
	gameService    *services.GameService
	broadcaster    broadcast.Broadcaster
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *rpc.Server
	sweepID        int64
	conns          sync.WaitGroup
	mutex          sync.Mutex
	shutdownChan   chan struct{}
}

// Settings converts the game section of cfg into room settings driven by clock.
func Settings(cfg *config.Config, clock game.Clock) (room.Settings, error) {
	symbols, err := game.ParseSymbols(cfg.Game.Symbols)
	if err != nil {
		return room.Settings{}, fmt.Errorf("game.symbols: %w", err)
	}
	return room.Settings{
		Symbols: symbols,
		Timings: game.Timings{
			Hold:       cfg.Game.Hold,
			Gap:        cfg.Game.Gap,
			InputDelay: cfg.Game.InputDelay,
			Settle:     cfg.Game.Settle,
		},
		Sounds:     cfg.Game.Sounds,
		MaxPlayers: 1 + cfg.Server.MaxSpectators,
		Clock:      clock,
	}, nil
}

func NewGameServer(cfg *config.Config, timers *timer.TimerManager, mon *monitor.Monitor) (*GameServer, error) {
	settings, err := Settings(cfg, timers)
	if err != nil {
		return nil, err
	}

	s := &GameServer{
		cfg:            cfg,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		monitor:        mon,
		timers:         timers,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	rb := broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	s.broadcaster = rb
	s.gameService = services.NewGameService(s.roomManager, rb, mon, settings)

	if cfg.Server.RPCAddress != "" {
		rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			return nil, fmt.Errorf("rpc listen: %w", err)
		}
		if err := rpcServer.Register(rpc.NewAdminService(s.gameService)); err != nil {
			rpcServer.Stop()
			return nil, fmt.Errorf("rpc register: %w", err)
		}
		s.rpcServer = rpcServer
	}

	s.router = s.routes()
	return s, nil
}

func (s *GameServer) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.monitor.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/api/rooms", s.handleListRooms)
	})
	return r
}

// Handler exposes the router (useful for tests).
func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown. It also starts the RPC listener and the idle sweep.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	idle, every := s.cfg.Server.SessionIdleTimeout, s.cfg.Server.IdleSweepInterval
	if idle > 0 && every > 0 {
		s.mutex.Lock()
		s.sweepID = s.timers.AddTimer(every, every, s.sweepIdle)
		s.mutex.Unlock()
	}

	s.mutex.Lock()
	select {
	case <-s.shutdownChan:
		s.mutex.Unlock()
		return nil
	default:
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mutex.Unlock()

	logger.Log.Infof("Game server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every session and room, and waits for the
// connection handlers to return or ctx to expire.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	select {
	case <-s.shutdownChan:
		s.mutex.Unlock()
		return nil
	default:
		close(s.shutdownChan)
	}
	srv := s.httpServer
	if s.sweepID != 0 {
		s.timers.RemoveTimer(s.sweepID)
	}
	s.mutex.Unlock()

	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	if data, mErr := json.Marshal(models.ErrorMessage{Error: "server shutting down"}); mErr == nil {
		s.broadcaster.BroadcastToAll(network.MsgTypeError, data)
	}
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	for _, r := range s.roomManager.Rooms() {
		s.roomManager.RemoveRoom(r.ID)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *GameServer) sweepIdle() {
	cutoff := time.Now().Add(-s.cfg.Server.SessionIdleTimeout)
	for _, sess := range s.sessionManager.IdleSince(cutoff) {
		logger.Log.Infof("Session %s (%v) idle since %s, closing", sess.GetID(), sess.Get("remote_addr"), sess.LastActive().Format(time.RFC3339))
		sess.Close()
	}
}

func (s *GameServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if err := json.NewEncoder(w).Encode(s.gameService.ListRooms()); err != nil {
		logger.Log.Warnf("encode rooms: %v", err)
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	select {
	case <-s.shutdownChan:
		s.mutex.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	s.conns.Add(1)
	s.mutex.Unlock()
	defer s.conns.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.cfg.Server.SessionIdleTimeout)
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.Set("remote_addr", wsConn.RemoteAddr().String())
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		if err := s.gameService.LeaveRoom(sess); err != nil && !errors.Is(err, services.ErrNotInRoom) {
			logger.Log.Warnf("leave room on disconnect: %v", err)
		}
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		s.monitor.SetActiveRooms(s.gameService.RoomCount())
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if errors.Is(err, io.ErrShortBuffer) {
			logger.Log.Warnf("Session %s sent a malformed packet", sess.GetID())
			continue
		}
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	sess.Touch()
	s.monitor.IncMessagesReceived(packet.MsgID)
	defer func() {
		s.monitor.ObserveMessageLatency(time.Since(start))
	}()

	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		err = sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeCreateRoom:
		err = s.handleCreateRoom(sess)
	case network.MsgTypeJoinRoom:
		err = s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		err = s.gameService.LeaveRoom(sess)
	case network.MsgTypeStartGame:
		_, err = s.gameService.StartGame(sess)
	case network.MsgTypeActivate:
		err = s.handleActivate(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		err = fmt.Errorf("%w: %d", ErrUnknownMessage, packet.MsgID)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		logger.Log.Warnf("Session %s sent malformed payload for %d: %v", sess.GetID(), packet.MsgID, err)
	default:
		logger.Log.Debugf("Session %s message %d: %v", sess.GetID(), packet.MsgID, err)
		s.sendError(sess, err)
	}

	s.monitor.SetActiveRooms(s.gameService.RoomCount())
}

func (s *GameServer) handleCreateRoom(sess *session.Session) error {
	reply, err := s.gameService.CreateRoom(sess)
	if err != nil {
		return err
	}
	return sess.SendJSON(network.MsgTypeCreateRoom, reply)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) error {
	var req models.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return err
	}
	reply, err := s.gameService.JoinRoom(sess, req.RoomID)
	if err != nil {
		return err
	}
	return sess.SendJSON(network.MsgTypeJoinRoom, reply)
}

func (s *GameServer) handleActivate(sess *session.Session, packet *network.Packet) error {
	var req models.ActivateRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return err
	}
	reply, err := s.gameService.Activate(sess, req.Symbol)
	if err != nil {
		return err
	}
	return sess.SendJSON(network.MsgTypeActivate, reply)
}

func (s *GameServer) sendError(sess *session.Session, cause error) {
	data, err := json.Marshal(models.ErrorMessage{Error: cause.Error()})
	if err != nil {
		return
	}
	if err := s.broadcaster.SendToSession(sess.GetID(), network.MsgTypeError, data); err != nil {
		logger.Log.Debugf("send error to %s: %v", sess.GetID(), err)
	}
}

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}
