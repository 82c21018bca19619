package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/gomoku-backend/internal/broadcast"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/internal/pkg"
	"github.com/rocketscienceinc/gomoku-backend/internal/service"
)

type roomService interface {
	CreateRoom(ctx context.Context, hostID, name, visibility string) (*entity.Room, error)
	JoinRoom(ctx context.Context, roomID, userID string) (*entity.Room, error)
	JoinByCode(ctx context.Context, code, userID string) (*entity.Room, error)
	FindOrCreatePublicRoom(ctx context.Context, userID string) (*entity.Room, error)
	MarkReady(ctx context.Context, roomID, userID string) (*entity.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) (*entity.Room, error)
	RequestRematch(ctx context.Context, roomID, userID string) (*entity.Room, error)
	AcceptRematch(ctx context.Context, roomID, userID string) (*entity.Room, error)
	GetRoom(ctx context.Context, roomID string) (*entity.Room, error)
	ActiveRoom(ctx context.Context, userID string) (*entity.Room, error)
}

type gameplayService interface {
	MakeMove(ctx context.Context, roomID, userID string, x, y int) (*service.GameState, error)
	Surrender(ctx context.Context, roomID, userID string) (*entity.Room, error)
	State(ctx context.Context, roomID string) (*service.GameState, error)
}

type userDirectory interface {
	Save(ctx context.Context, id, displayName string) error
	DisplayName(ctx context.Context, id string) (string, error)
}

type presenceTracker interface {
	Heartbeat(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type Server struct {
	logger *slog.Logger

	rooms    roomService
	gameplay gameplayService
	users    userDirectory
	presence presenceTracker

	subscriber *redis.Client

	handlers map[string]func(ctx context.Context, message *Message, bufrw *bufio.ReadWriter) error

	connectionsMutex sync.RWMutex
	connections      map[string]*bufio.ReadWriter

	membersMutex sync.RWMutex
	members      map[string]map[string]struct{}

	writeLocksMutex sync.Mutex
	writeLocks      map[*bufio.ReadWriter]*sync.Mutex
}

func New(
	logger *slog.Logger,
	rooms roomService,
	gameplay gameplayService,
	users userDirectory,
	presence presenceTracker,
	subscriber *redis.Client,
) *Server {
	server := &Server{
		logger: logger,

		rooms:    rooms,
		gameplay: gameplay,
		users:    users,
		presence: presence,

		subscriber: subscriber,

		handlers:    make(map[string]func(context.Context, *Message, *bufio.ReadWriter) error),
		connections: make(map[string]*bufio.ReadWriter),
		members:     make(map[string]map[string]struct{}),
		writeLocks:  make(map[*bufio.ReadWriter]*sync.Mutex),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["room:create"] = server.handleRoomCreate
	server.handlers["room:join"] = server.handleRoomJoin
	server.handlers["room:quick"] = server.handleRoomQuick
	server.handlers["room:ready"] = server.handleRoomReady
	server.handlers["room:leave"] = server.handleRoomLeave
	server.handlers["room:rematch"] = server.handleRematchRequest
	server.handlers["room:rematch:accept"] = server.handleRematchAccept
	server.handlers["room:state"] = server.handleRoomState
	server.handlers["game:move"] = server.handleGameMove
	server.handlers["game:surrender"] = server.handleGameSurrender

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	go that.runSubscriber(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint: contextcheck // parent context is already done
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	if req.Header.Get("Upgrade") != "websocket" {
		http.Error(writer, "not a websocket upgrade", http.StatusBadRequest)
		return
	}

	that.setSessionCookie(writer, req)

	key := req.Header.Get("Sec-WebSocket-Key")
	acceptKey := pkg.GenerateAcceptKey(key)

	writer.Header().Set("Upgrade", "websocket")
	writer.Header().Set("Connection", "Upgrade")
	writer.Header().Set("Sec-WebSocket-Accept", acceptKey)
	writer.WriteHeader(http.StatusSwitchingProtocols)

	hijacker, ok := writer.(http.Hijacker)
	if !ok {
		log.Error("web server does not support hijacking", "error", http.StatusText(http.StatusInternalServerError))
		return
	}

	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		log.Error("failed to hijack connection", "error", err)
		return
	}

	defer conn.Close()

	log.Info("WebSocket connection established")

	if err = that.handleMessages(ctx, bufrw); err != nil {
		log.Error("error handling messages", "error", err)
	}

	that.handleDisconnect(ctx, bufrw)
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleMessages")

	for {
		reqBody, err := that.readRequest(bufrw)
		if err != nil {
			log.Error("error reading message", "error", err)
			return err
		}

		if reqBody == nil {
			continue
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			continue
		}

		if err = handler(ctx, &message, bufrw); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// setSessionCookie - set user session.
func (that *Server) setSessionCookie(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "setSessionCookie")

	cookie, err := req.Cookie("user_session")
	if err != nil {
		cookie = &http.Cookie{
			Name:    "user_session",
			Value:   pkg.GenerateNewSessionID(),
			Expires: time.Now().Add(24 * time.Hour),
			Path:    "/ws",
		}
		http.SetCookie(writer, cookie)
		log.Info("session cookie not found, new one created", "cookie", cookie.Value)
		return
	}

	log.Info("session cookie found", "cookie", cookie.Value)
}

func (that *Server) handleDisconnect(ctx context.Context, bufrw *bufio.ReadWriter) {
	log := that.logger.With("method", "handleDisconnect")

	that.writeLocksMutex.Lock()
	delete(that.writeLocks, bufrw)
	that.writeLocksMutex.Unlock()

	that.connectionsMutex.Lock()
	var disconnectedUserID string
	for userID, connection := range that.connections {
		if connection == bufrw {
			disconnectedUserID = userID
			break
		}
	}

	if disconnectedUserID == "" {
		that.connectionsMutex.Unlock()
		return
	}

	delete(that.connections, disconnectedUserID)
	that.connectionsMutex.Unlock()

	if err := that.presence.Offline(ctx, disconnectedUserID); err != nil {
		log.Error("failed to mark user offline", "userID", disconnectedUserID, "error", err)
	}

	log.Info("user disconnected", "userID", disconnectedUserID)
}

// writeLocked serializes frame writes per connection: the subscriber
// goroutine and the connection's own handler goroutine may both push
// frames to the same client, and interleaved writes would corrupt the
// stream.
func (that *Server) writeLocked(bufrw *bufio.ReadWriter, frameData frame) error {
	lock := that.writeLock(bufrw)
	lock.Lock()
	defer lock.Unlock()

	return writeFrame(bufrw, frameData)
}

func (that *Server) writeLock(bufrw *bufio.ReadWriter) *sync.Mutex {
	that.writeLocksMutex.Lock()
	defer that.writeLocksMutex.Unlock()

	lock, ok := that.writeLocks[bufrw]
	if !ok {
		lock = &sync.Mutex{}
		that.writeLocks[bufrw] = lock
	}

	return lock
}

func (that *Server) registerConnection(userID string, bufrw *bufio.ReadWriter) {
	that.connectionsMutex.Lock()
	that.connections[userID] = bufrw
	that.connectionsMutex.Unlock()
}

func (that *Server) connection(userID string) (*bufio.ReadWriter, bool) {
	that.connectionsMutex.RLock()
	conn, ok := that.connections[userID]
	that.connectionsMutex.RUnlock()

	return conn, ok
}

// rememberMembers keeps the room to players index fresh so game events,
// which carry only a room id, can be fanned out without a storage read.
func (that *Server) rememberMembers(room *entity.Room) {
	if room == nil {
		return
	}

	set := make(map[string]struct{}, len(room.Players))
	for _, player := range room.Players {
		set[player.UserID] = struct{}{}
	}

	that.membersMutex.Lock()
	if len(set) == 0 || room.IsFinished() {
		delete(that.members, room.ID)
	} else {
		that.members[room.ID] = set
	}
	that.membersMutex.Unlock()
}

func (that *Server) roomMembers(roomID string) []string {
	that.membersMutex.RLock()
	defer that.membersMutex.RUnlock()

	ids := make([]string, 0, len(that.members[roomID]))
	for id := range that.members[roomID] {
		ids = append(ids, id)
	}

	return ids
}

// runSubscriber forwards room and game events published by the services
// to every connected player of the affected room. Delivery is best
// effort: a failed write is logged and dropped.
func (that *Server) runSubscriber(ctx context.Context) {
	log := that.logger.With("method", "runSubscriber")

	pubsub := that.subscriber.PSubscribe(ctx, broadcast.RoomPattern, broadcast.GamePattern)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}

			switch {
			case broadcast.IsRoomTopic(msg.Channel):
				that.forwardRoomEvent(log, msg.Payload)
			case broadcast.IsGameTopic(msg.Channel):
				that.forwardGameEvent(log, msg.Payload)
			}
		}
	}
}

func (that *Server) forwardRoomEvent(log *slog.Logger, payload string) {
	var room entity.Room
	if err := json.Unmarshal([]byte(payload), &room); err != nil {
		log.Error("failed to unmarshal room event", "error", err)
		return
	}

	that.rememberMembers(&room)

	for _, player := range room.Players {
		conn, ok := that.connection(player.UserID)
		if !ok {
			continue
		}

		if err := that.sendMessage(conn, "room:update", Payload{Room: &room}); err != nil {
			log.Error("failed to forward room event", "userID", player.UserID, "error", err)
		}
	}
}

func (that *Server) forwardGameEvent(log *slog.Logger, payload string) {
	var event broadcast.GameEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Error("failed to unmarshal game event", "error", err)
		return
	}

	raw, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to marshal game event", "error", err)
		return
	}

	message := Message{Action: "game:update", Payload: raw}
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Error("failed to marshal message", "error", err)
		return
	}

	for _, userID := range that.roomMembers(event.RoomID) {
		conn, ok := that.connection(userID)
		if !ok {
			continue
		}

		f := frame{isFin: true, opCode: 1, length: uint64(len(messageBytes)), payload: messageBytes}
		if err = that.writeLocked(conn, f); err != nil {
			log.Error("failed to forward game event", "userID", userID, "error", err)
		}
	}
}
