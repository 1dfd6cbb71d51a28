package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChatWS ведёт диалог по WebSocket: на каждый текстовый кадр {"message": "..."}
// отправляется один кадр ответа в формате /api/chat.
func (h *Handler) ChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)
	ctx := r.Context()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame any
		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			frame = errorResponse{Error: "Invalid JSON"}
		} else if userID, err := resolveUserID(ctx, req.UserID); err != nil {
			frame = errorResponse{Error: "Invalid user_id"}
		} else if resp, err := h.converse(ctx, userID, req.Message); err != nil {
			frame = errorResponse{Error: http.StatusText(http.StatusInternalServerError)}
		} else {
			frame = resp
		}

		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Warn("websocket write error", zap.Error(err))
			return
		}
	}
}
