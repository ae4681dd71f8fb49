package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/rocketscienceinc/rps-online/internal/pkg"
	"github.com/rocketscienceinc/rps-online/internal/usecase"
)

const (
	commandInterval = 100 * time.Millisecond
	commandBurst    = 10

	signalDisconnect = "disconnect"
)

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrTooManyCommands = errors.New("too many commands, slow down")
)

type Server struct {
	logger   *slog.Logger
	hub      *Hub
	game     usecase.GameUseCase
	origins  []string
	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, conn *connection, message *Message) error
}

func New(logger *slog.Logger, hub *Hub, game usecase.GameUseCase, allowedOrigins []string) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		hub:     hub,
		game:    game,
		origins: allowedOrigins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},

		handlers: make(map[string]func(context.Context, *connection, *Message) error),
	}

	server.handlers["mode:set"] = server.handleSetMode
	server.handlers["match:start"] = server.handleStart
	server.handlers["round:start"] = server.handleStart
	server.handlers["score:reset"] = server.handleResetScore
	server.handlers["room:create"] = server.handleCreateRoom
	server.handlers["room:join"] = server.handleJoinRoom
	server.handlers["room:leave"] = server.handleLeaveRoom
	server.handlers["page:beforeunload"] = server.handlePageSignal
	server.handlers["page:hide"] = server.handlePageSignal

	return server
}

// Handler - the /ws endpoint wrapped with CORS.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   that.origins,
		AllowCredentials: true,
	}).Handler(mux)
}

// Start - starts WebSocket server. Returns when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down websocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	wsConn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{
		id:      pkg.GenerateConnectionID(),
		conn:    wsConn,
		limiter: rate.NewLimiter(rate.Every(commandInterval), commandBurst),
	}

	that.hub.add(conn)
	log.Info("WebSocket connection established", "connection", conn.id)

	defer func() {
		left := that.hub.remove(conn)
		if closeErr := wsConn.Close(); closeErr != nil {
			log.Debug("failed to close connection", "error", closeErr)
		}

		log.Info("WebSocket connection closed", "connection", conn.id)

		if left == 0 {
			that.game.Cleanup(signalDisconnect)
		}
	}()

	if err = that.sendState(conn, "connect"); err != nil {
		log.Error("failed to send state", "error", err)
		return
	}

	if err = that.handleMessages(ctx, conn); err != nil {
		log.Debug("stopped handling messages", "error", err)
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, conn *connection) error {
	log := that.logger.With("method", "handleMessages", "connection", conn.id)

	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		if !conn.limiter.Allow() {
			if err = conn.sendError(message.Action, ErrTooManyCommands); err != nil {
				return err
			}
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			if err = conn.sendError(message.Action, ErrUnknownAction); err != nil {
				return err
			}
			continue
		}

		if err = handler(ctx, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}

	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}

	return false
}
