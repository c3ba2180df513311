// Command client is a terminal Simon player. It renders cues and highlights as text and
// sends typed symbols back to the server.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wfunc/simon/game"
	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/models"
	"github.com/wfunc/simon/network"
	"github.com/wfunc/simon/state"
)

type client struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex

	mu        sync.Mutex
	symbols   []string
	spectator bool
	phase     state.Phase
}

// send formats and sends a message to the WebSocket server.
func (c *client) send(msgID uint16, v interface{}) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (c *client) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Infof("Read error: %v", err)
			return
		}
		packet, err := network.Decode(message)
		if err != nil {
			logger.Log.Warnf("Received invalid packet of size %d", len(message))
			continue
		}
		c.render(packet)
	}
}

func (c *client) render(packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeCreateRoom:
		var reply models.CreateRoomReply
		if json.Unmarshal(packet.Data, &reply) == nil {
			c.setSymbols(reply.Symbols, false)
			fmt.Printf("Room %s created. Type 'start' to play.\n", reply.RoomID)
		}
	case network.MsgTypeJoinRoom:
		var reply models.JoinRoomReply
		if json.Unmarshal(packet.Data, &reply) == nil {
			c.setSymbols(reply.Symbols, reply.Spectator)
			fmt.Printf("Watching room %s (round %d, score %d).\n", reply.RoomID, reply.State.Round, reply.State.Score)
		}
	case network.MsgTypeCue:
		var cue models.CueMessage
		if json.Unmarshal(packet.Data, &cue) == nil {
			fmt.Printf("♪ %s\n", cue.Cue)
		}
	case network.MsgTypeHighlight:
		var hl models.HighlightMessage
		if json.Unmarshal(packet.Data, &hl) == nil && hl.Active {
			fmt.Printf("  [%s]\n", strings.ToUpper(hl.Symbol))
		}
	case network.MsgTypeGameState:
		var msg models.StateMessage
		if json.Unmarshal(packet.Data, &msg) != nil {
			return
		}
		c.mu.Lock()
		c.phase = msg.State.Phase
		spectator := c.spectator
		c.mu.Unlock()

		switch {
		case msg.State.GameOver:
			fmt.Printf("Game over. Score %d. Type 'start' to play again.\n", msg.State.Score)
		case msg.State.Phase == state.AwaitingInput && len(msg.State.Input) == 0 && !spectator:
			fmt.Printf("Round %d, score %d. Your turn: %s\n", msg.State.Round, msg.State.Score, c.controls())
		case msg.State.Phase == state.Presenting:
			fmt.Printf("Round %d, watch...\n", msg.State.Round)
		}
	case network.MsgTypeActivate:
		var reply models.ActivateReply
		if json.Unmarshal(packet.Data, &reply) == nil && reply.Outcome == game.OutcomeRoundComplete {
			fmt.Println("Correct!")
		}
	case network.MsgTypeError:
		var msg models.ErrorMessage
		if json.Unmarshal(packet.Data, &msg) == nil {
			fmt.Printf("error: %s\n", msg.Error)
		}
	case network.MsgTypeHeartbeat:
	default:
		logger.Log.Debugf("<- RECV (ID: %d): %s", packet.MsgID, packet.Data)
	}
}

func (c *client) setSymbols(symbols []string, spectator bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = symbols
	c.spectator = spectator
}

func (c *client) controls() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		parts[i] = fmt.Sprintf("%d=%s", i+1, s)
	}
	return strings.Join(parts, " ")
}

// resolve maps typed input to a symbol: its name, its 1-based index, or its first letter.
func (c *client) resolve(text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(c.symbols) {
		return c.symbols[n-1], true
	}
	for _, s := range c.symbols {
		if s == text {
			return s, true
		}
	}
	var match string
	for _, s := range c.symbols {
		if strings.HasPrefix(s, text) {
			if match != "" {
				return "", false
			}
			match = s
		}
	}
	return match, match != ""
}

func (c *client) handleLine(text string) error {
	switch text {
	case "":
		return nil
	case "start":
		return c.send(network.MsgTypeStartGame, nil)
	case "leave":
		return c.send(network.MsgTypeLeaveRoom, nil)
	case "new":
		return c.send(network.MsgTypeCreateRoom, nil)
	}

	c.mu.Lock()
	enabled := !c.spectator && c.phase == state.AwaitingInput
	c.mu.Unlock()
	if !enabled {
		fmt.Println("Controls are disabled right now.")
		return nil
	}

	sym, ok := c.resolve(text)
	if !ok {
		fmt.Printf("Unknown symbol %q. Choose from %s\n", text, c.controls())
		return nil
	}
	return c.send(network.MsgTypeActivate, models.ActivateRequest{Symbol: sym})
}

func run(addr, roomID string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	c := &client{conn: conn}
	done := make(chan struct{})
	go c.readLoop(done)

	if roomID == "" {
		err = c.send(network.MsgTypeCreateRoom, nil)
	} else {
		err = c.send(network.MsgTypeJoinRoom, models.JoinRoomRequest{RoomID: roomID})
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-heartbeat.C:
			if err := c.send(network.MsgTypeHeartbeat, nil); err != nil {
				return err
			}
		case text, ok := <-lines:
			if !ok || text == "quit" {
				return closeNormally(conn, done)
			}
			if err := c.handleLine(text); err != nil {
				return err
			}
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			return closeNormally(conn, done)
		}
	}
}

func closeNormally(conn *websocket.Conn, done <-chan struct{}) error {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return err
}

func main() {
	var addr, roomID, level string

	cmd := &cobra.Command{
		Use:          "simon-client",
		Short:        "Play Simon in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: level, Development: true}); err != nil {
				return err
			}
			defer logger.Sync()
			return run(addr, roomID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server host:port")
	cmd.Flags().StringVar(&roomID, "room", "", "room to watch; empty creates a new room")
	cmd.Flags().StringVar(&level, "log-level", "warn", "log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
