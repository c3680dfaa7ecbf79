package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"docchat-backend/internal/chat"
	"docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	socketWriteWait = 10 * time.Second
	// Clients ping every 30s, so a silent connection is considered dead
	// after a few missed pings.
	socketReadTimeout = 2 * time.Minute
	maxSocketMessage  = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// ChatService serves the chat socket. Each connection runs at most one turn at
// a time; the read loop keeps answering pings while a turn streams.
type ChatService struct {
	chat *chat.Service
}

func NewChatService(svc *chat.Service) *ChatService {
	return &ChatService{chat: svc}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Get("/ws/{client_id}", s.HandleSocket)
}

type connection struct {
	ws       *websocket.Conn
	clientId string

	writeLock sync.Mutex
	streaming atomic.Bool
	turns     sync.WaitGroup
}

func (c *connection) send(event api.Event) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(event); err != nil {
		slog.Warn("failed to write socket event", "client_id", c.clientId, "type", event.Type, "error", err)
		return err
	}
	return nil
}

func (c *connection) sendError(message string) {
	_ = c.send(api.MustEvent(api.EventError, api.ErrorData{Message: message}))
}

func (s *ChatService) HandleSocket(w http.ResponseWriter, r *http.Request) {
	clientId := chi.URLParam(r, "client_id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "client_id", clientId, "error", err)
		return
	}

	conn := &connection{ws: ws, clientId: clientId}

	// Turns outlive the request handler's use of r, so they get their own
	// context that ends when the socket does.
	ctx, cancel := context.WithCancel(context.Background())

	wsConnectionsActive.Inc()
	slog.Info("socket client connected", "client_id", clientId)

	defer func() {
		cancel()
		conn.turns.Wait()
		ws.Close()
		wsConnectionsActive.Dec()
		slog.Info("socket client disconnected", "client_id", clientId)
	}()

	ws.SetReadLimit(maxSocketMessage)

	for {
		if err := ws.SetReadDeadline(time.Now().Add(socketReadTimeout)); err != nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("socket read failed", "client_id", clientId, "error", err)
			}
			return
		}

		var req api.SocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			wsRequestsTotal.WithLabelValues("invalid").Inc()
			conn.sendError("invalid message: expected a JSON object")
			continue
		}

		switch req.Type {
		case api.RequestPing:
			wsRequestsTotal.WithLabelValues(api.RequestPing).Inc()
			if err := conn.send(api.MustEvent(api.EventPong, nil)); err != nil {
				return
			}

		case api.RequestChat:
			wsRequestsTotal.WithLabelValues(api.RequestChat).Inc()
			if !conn.streaming.CompareAndSwap(false, true) {
				conn.sendError(chat.ErrTurnInProgress.Error())
				continue
			}

			conn.turns.Add(1)
			go func(req api.ChatRequest) {
				defer conn.turns.Done()

				// The flag is cleared before stream_end goes out so a client can
				// send its next message as soon as it sees the end of this one.
				var once sync.Once
				release := func() { once.Do(func() { conn.streaming.Store(false) }) }
				defer release()

				emit := func(event api.Event) error {
					if event.Type == api.EventStreamEnd {
						release()
					}
					return conn.send(event)
				}

				if err := s.chat.Turn(ctx, req, emit); err != nil {
					release()
					if chat.IsDisconnect(err) {
						slog.Info("chat turn ended by disconnect", "client_id", clientId, "conversation_id", req.ConversationId)
						return
					}
					slog.Warn("chat turn failed", "client_id", clientId, "conversation_id", req.ConversationId, "error", err)
					conn.sendError(chat.ClientMessage(err))
				}
			}(req.ChatRequest())

		default:
			wsRequestsTotal.WithLabelValues("unknown").Inc()
			conn.sendError("unknown message type: " + req.Type)
		}
	}
}
