package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/tradein/internal/observe"
)

// streamHello is the first message on a turn stream.
type streamHello struct {
	SessionID string `json:"session_id"`
}

// turnMessage is one client frame on a turn stream.
type turnMessage struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// handleTurnStream upgrades to a websocket bound to one session. The session
// id comes from the session_id query parameter or is minted and announced in
// the first frame. Each client frame is processed as a turn and answered
// with the same body POST /v1/turns returns.
func (s *Server) handleTurnStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = s.newID()
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: websocket accept", "err", err)
		return
	}
	defer c.CloseNow()

	ctx := observe.WithSessionID(r.Context(), id)
	log := observe.Logger(ctx)

	if err := wsjson.Write(ctx, c, streamHello{SessionID: id}); err != nil {
		log.Warn("api: websocket hello", "err", err)
		return
	}

	for {
		var msg turnMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("turn stream closed")
			default:
				log.Warn("api: websocket read", "err", err)
			}
			return
		}

		req := turnRequest{SessionID: id, User: msg.User, Assistant: msg.Assistant}
		if err := validate.Struct(req); err != nil {
			if err := wsjson.Write(ctx, c, errorBody{Error: validationMessage(err)}); err != nil {
				return
			}
			continue
		}
		if err := wsjson.Write(ctx, c, s.runTurn(ctx, req)); err != nil {
			log.Warn("api: websocket write", "err", err)
			return
		}
	}
}
