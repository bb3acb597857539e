package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/room"
)

const (
	outboundBuffer = 32
	writeTimeout   = 5 * time.Second
)

// client adapts one websocket connection to the room.Client contract: a
// server-assigned id plus a buffered outbound channel drained by a dedicated
// writer goroutine.
type client struct {
	id   string
	conn *websocket.Conn
	out  chan room.Event
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan room.Event, outboundBuffer),
	}
}

func (c *client) ID() string { return c.id }

// Send queues an event without blocking. A consumer that cannot keep up loses
// events rather than stalling the room that is broadcasting.
func (c *client) Send(ev room.Event) {
	select {
	case c.out <- ev:
	default:
		obslog.L().Warn("ws_drop_slow", zap.String("conn", c.id), zap.String("action", ev.Action))
	}
}

// writeLoop drains the outbound channel onto the wire. It exits when ctx is
// canceled or a write fails; the read side notices the dead connection and
// runs the disconnect path.
func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
