package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/room"
	"github.com/park285/cheese-arena/internal/rules"
)

const joinDeadline = 30 * time.Second

// envelope is the wire frame in both directions: an action tag plus payload.
type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID string `json:"room_id"`
}

// Handler terminates websocket connections and translates between the wire
// protocol and room operations. Each connection attaches to at most one room.
type Handler struct {
	reg     *room.Registry
	origins []string
}

func NewHandler(reg *room.Registry, origins []string) *Handler {
	return &Handler{reg: reg, origins: origins}
}

func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	ctx := r.Context()
	cl := newClient(conn)
	obslog.L().Info("ws_accept", zap.String("conn", cl.ID()))

	go cl.writeLoop(ctx)

	// First frame must be a join naming the room.
	roomID, err := h.readJoin(ctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "expected join")
		return
	}

	rm, err := h.reg.Join(roomID, cl)
	if err != nil {
		if errors.Is(err, room.ErrRoomLimit) {
			_ = conn.Close(websocket.StatusTryAgainLater, "room limit reached")
		} else {
			_ = conn.Close(websocket.StatusInternalError, "join failed")
		}
		return
	}

	defer func() {
		h.reg.Release(roomID, cl.ID())
		_ = conn.Close(websocket.StatusNormalClosure, "")
		obslog.L().Info("ws_close", zap.String("conn", cl.ID()), zap.String("room", roomID))
	}()

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			// transport failure and clean close both take the disconnect path
			return
		}
		h.dispatch(rm, cl.ID(), env)
	}
}

func (h *Handler) dispatch(rm *room.Room, connID string, env envelope) {
	switch env.Action {
	case "move":
		var req rules.MoveRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			obslog.L().Debug("ws_bad_move", zap.String("conn", connID), zap.Error(err))
			return
		}
		rm.SubmitMove(connID, req)
	case "resign":
		rm.Resign(connID)
	case "timeout_claim":
		rm.ClaimTimeout(connID)
	default:
		obslog.L().Debug("ws_unknown_action", zap.String("conn", connID), zap.String("action", env.Action))
	}
}

func (h *Handler) readJoin(ctx context.Context, conn *websocket.Conn) (string, error) {
	jctx, cancel := context.WithTimeout(ctx, joinDeadline)
	defer cancel()

	var env envelope
	if err := wsjson.Read(jctx, conn, &env); err != nil {
		return "", err
	}
	if env.Action != "join" {
		return "", errors.New("first frame must be join")
	}
	var jp joinPayload
	if err := json.Unmarshal(env.Data, &jp); err != nil {
		return "", err
	}
	roomID := strings.TrimSpace(jp.RoomID)
	if roomID == "" {
		return "", errors.New("missing room_id")
	}
	return roomID, nil
}
