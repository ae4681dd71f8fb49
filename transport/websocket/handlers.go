package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) sendState(conn *connection, action string) error {
	score := that.game.Score()

	return conn.send(action, ResponsePayload{Mode: that.game.Mode(), Score: &score})
}

func (that *Server) handleSetMode(_ context.Context, conn *connection, msg *Message) error {
	var payload ModePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return conn.sendError(msg.Action, fmt.Errorf("invalid payload: %w", err))
	}

	if err := that.game.SetMode(payload.Mode); err != nil {
		return conn.sendError(msg.Action, err)
	}

	return that.sendState(conn, msg.Action)
}

// handleStart - a round takes seconds, its progress arrives as events.
func (that *Server) handleStart(ctx context.Context, conn *connection, msg *Message) error {
	go func() {
		if err := that.game.Start(ctx); err != nil {
			that.logger.Warn("round not played", "action", msg.Action, "error", err)
			if sendErr := conn.sendError(msg.Action, err); sendErr != nil {
				that.logger.Debug("failed to report round error", "error", sendErr)
			}
		}
	}()

	return nil
}

func (that *Server) handleResetScore(_ context.Context, conn *connection, msg *Message) error {
	if err := that.game.ResetScore(); err != nil {
		return conn.sendError(msg.Action, err)
	}

	return that.sendState(conn, msg.Action)
}

func (that *Server) handleCreateRoom(ctx context.Context, conn *connection, msg *Message) error {
	var payload RoomPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return conn.sendError(msg.Action, fmt.Errorf("invalid payload: %w", err))
		}
	}

	room, err := that.game.CreateRoom(ctx, payload.DisplayName)
	if err != nil {
		return conn.sendError(msg.Action, err)
	}

	return conn.send(msg.Action, ResponsePayload{Mode: that.game.Mode(), Room: room})
}

func (that *Server) handleJoinRoom(ctx context.Context, conn *connection, msg *Message) error {
	var payload RoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return conn.sendError(msg.Action, fmt.Errorf("invalid payload: %w", err))
	}

	room, err := that.game.JoinRoom(ctx, payload.Code, payload.DisplayName)
	if err != nil {
		return conn.sendError(msg.Action, err)
	}

	return conn.send(msg.Action, ResponsePayload{Mode: that.game.Mode(), Room: room})
}

func (that *Server) handleLeaveRoom(ctx context.Context, conn *connection, msg *Message) error {
	if err := that.game.Leave(ctx); err != nil {
		return conn.sendError(msg.Action, err)
	}

	return that.sendState(conn, msg.Action)
}

// handlePageSignal - hide and unload may both arrive, leaving twice is harmless.
func (that *Server) handlePageSignal(_ context.Context, _ *connection, msg *Message) error {
	that.game.Cleanup(msg.Action)

	return nil
}
