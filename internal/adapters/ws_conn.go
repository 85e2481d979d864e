package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

var errConnClosed = errors.New("connection closed")

// WSConnection is one server-side transport endpoint. It implements
// core.SignalConnection; the adapter owns the socket and closes it on its
// own disconnect path, never through the registry.
type WSConnection struct {
	id   domain.UserID
	conn WSConn
	send chan wire.Frame
	done chan struct{}
	once sync.Once
}

func NewWSConnection(id domain.UserID, conn WSConn, sendBuffer int) *WSConnection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &WSConnection{
		id:   id,
		conn: conn,
		send: make(chan wire.Frame, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *WSConnection) ID() domain.UserID { return c.id }

// TrySend enqueues a frame without blocking the caller's fan-out loop.
// The relay may still hold this connection after the disconnect path ran;
// a closed connection reports an error and the frame is skipped, same as
// an offline recipient. The send channel is never closed, so a send can
// never panic whatever the interleaving.
func (c *WSConnection) TrySend(f wire.Frame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *WSConnection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// StartWriteLoop pumps frames to the network and keeps the connection alive
// with periodic pings.
func (c *WSConnection) StartWriteLoop(ctx context.Context, writeTimeout, pingPeriod time.Duration) {
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			c.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case frame := <-c.send:
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, wire.EncodeFrame(frame)); err != nil {
					log.Warn().Str("module", "adapters.ws").Int64("user", int64(c.id)).Err(err).Msg("write failed")
					return
				}
			case <-ticker.C:
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

// StartReadLoop delivers raw inbound frames to handle in receipt order.
// onExit runs exactly once when the loop stops, before the socket closes;
// the caller unregisters itself there.
func (c *WSConnection) StartReadLoop(ctx context.Context, readLimit int64, pongWait time.Duration, handle func([]byte), onExit func()) {
	go func() {
		defer func() {
			onExit()
			c.Close()
		}()

		c.conn.SetReadLimit(readLimit)
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, data, err := c.conn.ReadMessage()
				if err != nil {
					log.Info().Str("module", "adapters.ws").Int64("user", int64(c.id)).Err(err).Msg("read loop closed")
					return
				}
				handle(data)
			}
		}
	}()
}
