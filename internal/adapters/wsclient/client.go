// Package wsclient is the client-side connection adapter: one outbound
// websocket per user identity, decoded frames delivered in wire order.
package wsclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 64 * 1024
)

var errClosed = fmt.Errorf("wsclient: connection closed")

// Client holds the single live connection of one endpoint identity.
type Client struct {
	conn   *websocket.Conn
	frames chan wire.Frame
	send   chan wire.Frame
	done   chan struct{}
	once   sync.Once
}

// Dial connects to `{baseURL}/ws/{userID}` and starts the transport pumps.
func Dial(ctx context.Context, baseURL string, userID domain.UserID) (*Client, error) {
	url := fmt.Sprintf("%s/ws/%d", strings.TrimSuffix(baseURL, "/"), userID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		frames: make(chan wire.Frame, 32),
		send:   make(chan wire.Frame, 32),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// Frames streams inbound frames in the order received on the wire. The
// channel closes when the connection goes down.
func (c *Client) Frames() <-chan wire.Frame { return c.frames }

// Send enqueues an outbound frame. Satisfies call.Sender.
func (c *Client) Send(f wire.Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errClosed
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		close(c.frames)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Str("module", "wsclient").Err(err).Msg("connection closed")
			return
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil {
			// Malformed input never tears the connection down.
			log.Warn().Str("module", "wsclient").Err(err).Msg("dropping undecodable frame")
			continue
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, wire.EncodeFrame(frame)); err != nil {
				log.Warn().Str("module", "wsclient").Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
