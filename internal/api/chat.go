package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// Chat event types sent on /ws/chat.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// CreateConversationRequest starts a conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// TurnRequest is the body of a non-streaming turn.
type TurnRequest struct {
	Text string `json:"text"`
}

// ChatRequest is one client frame on /ws/chat. Turns on a connection run one at a time.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// ChatEvent is one server frame on /ws/chat: any number of token events followed
// by exactly one done or error event per request.
type ChatEvent struct {
	Type   string              `json:"type"`
	Token  string              `json:"token,omitempty"`
	Result *service.TurnResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// SearchRequest asks for grounding context without generation.
type SearchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.app.Conversations.Create(r.Context(), s.scope(r), req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, errBadRequest)
			return
		}
		limit = n
	}
	msgs, err := s.app.Conversations.History(r.Context(), s.scope(r), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.app.Chat.SendTurn(r.Context(), s.scope(r), r.PathValue("id"), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.app.Search.Search(r.Context(), s.scope(r), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChatSocket streams turns over a websocket. Closing the socket cancels the
// turn in flight, which aborts the provider request.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	scope := s.scope(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan ChatRequest)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			var req ChatRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range requests {
		s.streamTurn(ctx, conn, scope, req)
	}
}

func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, scope models.Scope, req ChatRequest) {
	res, err := s.app.Chat.StreamTurn(ctx, scope, req.ConversationID, req.Text, func(token string) error {
		return conn.WriteJSON(ChatEvent{Type: EventToken, Token: token})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if werr := conn.WriteJSON(ChatEvent{Type: EventError, Error: err.Error()}); werr != nil {
			s.logger.Debug("failed to send error event", "error", werr)
		}
		return
	}
	if err := conn.WriteJSON(ChatEvent{Type: EventDone, Result: res}); err != nil {
		s.logger.Debug("failed to send done event", "message_id", res.MessageID, "error", err)
	}
}
