// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrPayloadTooLarge is returned when a payload does not fit the 2-byte length field.
var ErrPayloadTooLarge = errors.New("payload exceeds 65535 bytes")

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

const (
	// writeWait bounds a single write when no heartbeat is configured.
	writeWait     = 5 * time.Second
	sendQueueSize = 256
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// Encode frames data as: 2-byte message id, 2-byte length, payload (big endian).
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)
	return packet, nil
}

// Decode parses one framed packet.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 4 {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < 4+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[4 : 4+int(length)],
	}, nil
}

// WSConnection queues outgoing packets and writes them from its own goroutine, so
// Send never waits on the peer.
type WSConnection struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	heartbeat  atomic.Int64 // time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return newWSConnection(conn, sendQueueSize)
}

func newWSConnection(conn *websocket.Conn, queue int) *WSConnection {
	c := &WSConnection{
		conn:       conn,
		send:       make(chan []byte, queue),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send enqueues a packet. A peer that lets the queue fill up is disconnected.
func (c *WSConnection) Send(msgID uint16, data []byte) error {
	packet, err := Encode(msgID, data)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- packet:
		return nil
	default:
		c.shutdown()
		return ErrSendQueueFull
	}
}

func (c *WSConnection) writeLoop() {
	defer close(c.writerDone)
	defer c.conn.Close()

	for {
		select {
		case packet := <-c.send:
			if err := c.write(packet); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			// flush what was queued before Close
			for {
				select {
				case packet := <-c.send:
					if err := c.write(packet); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *WSConnection) write(packet []byte) error {
	wait := writeWait
	if hb := time.Duration(c.heartbeat.Load()); hb > 0 && hb < wait {
		wait = hb
	}
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (c *WSConnection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if hb := time.Duration(c.heartbeat.Load()); hb > 0 {
		c.conn.SetReadDeadline(time.Now().Add(hb * 2))
	}
	return Decode(data)
}

// SetHeartbeat drops the connection if nothing is read for two intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat.Store(int64(interval))
	if interval > 0 {
		c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	}
}

// Close flushes queued packets, bounded by the write deadline, and closes the socket.
func (c *WSConnection) Close() error {
	c.shutdown()
	<-c.writerDone
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
