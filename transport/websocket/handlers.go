package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/internal/pkg"
)

func (that *Server) handleConnect(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleConnect")

	var payloadReq Payload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	user := payloadReq.User
	if user == nil {
		user = &UserInfo{}
	}

	if user.ID == "" {
		user.ID = pkg.GenerateNewSessionID()
	} else if user.Name == "" {
		// a returning client may reconnect without repeating its name
		name, err := that.users.DisplayName(ctx, user.ID)
		switch {
		case err == nil:
			user.Name = name
		case !errors.Is(err, apperror.ErrUserNotFound):
			log.Error("failed to look up display name", "userID", user.ID, "error", err)
		}
	}

	if err := that.users.Save(ctx, user.ID, user.Name); err != nil {
		log.Error("failed to save user", "userID", user.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, "failed to register user")
	}

	if err := that.presence.Heartbeat(ctx, user.ID); err != nil {
		log.Error("failed to record presence", "userID", user.ID, "error", err)
	}

	that.registerConnection(user.ID, bufrw)

	payloadResp := Payload{User: user}

	room, err := that.rooms.ActiveRoom(ctx, user.ID)
	if err != nil {
		log.Error("failed to look up active room", "userID", user.ID, "error", err)
	}

	if room != nil {
		that.rememberMembers(room)
		payloadResp.Room = room
	}

	if err := that.sendMessage(bufrw, msg.Action, payloadResp); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("user connected", "userID", user.ID)

	return nil
}

func (that *Server) handleRoomCreate(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomCreate")

	payloadReq, err := that.parseUserPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	roomType := payloadReq.RoomType
	if roomType == "" {
		roomType = entity.PrivateType
	}

	room, err := that.rooms.CreateRoom(ctx, payloadReq.User.ID, payloadReq.RoomName, roomType)
	if err != nil {
		log.Error("failed to create room", "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	that.rememberMembers(room)

	log.Info("room created", "roomID", room.ID, "userID", payloadReq.User.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRoomJoin(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomJoin")

	payloadReq, err := that.parseUserPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	var room *entity.Room

	switch {
	case payloadReq.JoinCode != "":
		room, err = that.rooms.JoinByCode(ctx, payloadReq.JoinCode, payloadReq.User.ID)
	case payloadReq.RoomID != "":
		room, err = that.rooms.JoinRoom(ctx, payloadReq.RoomID, payloadReq.User.ID)
	default:
		return that.sendErrorResponse(bufrw, msg.Action, "room_id or join_code is required")
	}

	if err != nil {
		log.Error("failed to join room", "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	that.rememberMembers(room)

	log.Info("user joined room", "roomID", room.ID, "userID", payloadReq.User.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRoomQuick(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomQuick")

	payloadReq, err := that.parseUserPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	room, err := that.rooms.FindOrCreatePublicRoom(ctx, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to match user", "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	that.rememberMembers(room)

	log.Info("user matched", "roomID", room.ID, "userID", payloadReq.User.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRoomReady(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomReady")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	room, err := that.rooms.MarkReady(ctx, payloadReq.RoomID, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to mark ready", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	log.Info("user ready", "roomID", room.ID, "userID", payloadReq.User.ID, "status", room.Status)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRoomLeave(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomLeave")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	room, err := that.rooms.LeaveRoom(ctx, payloadReq.RoomID, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to leave room", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	log.Info("user left room", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID)

	// room is nil when the last player left and the room was deleted
	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRematchRequest(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRematchRequest")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	room, err := that.rooms.RequestRematch(ctx, payloadReq.RoomID, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to request rematch", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	log.Info("rematch requested", "roomID", room.ID, "userID", payloadReq.User.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

func (that *Server) handleRematchAccept(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRematchAccept")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	newRoom, err := that.rooms.AcceptRematch(ctx, payloadReq.RoomID, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to accept rematch", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	that.rememberMembers(newRoom)

	log.Info("rematch accepted", "oldRoomID", payloadReq.RoomID, "newRoomID", newRoom.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: newRoom})
}

func (that *Server) handleRoomState(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleRoomState")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	state, err := that.gameplay.State(ctx, payloadReq.RoomID)
	if err != nil {
		log.Error("failed to get room state", "roomID", payloadReq.RoomID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	presence := make(map[string]bool, len(state.Room.Players))
	for _, player := range state.Room.Players {
		online, presErr := that.presence.IsOnline(ctx, player.UserID)
		if presErr != nil {
			log.Error("failed to check presence", "userID", player.UserID, "error", presErr)
			continue
		}

		presence[player.UserID] = online
	}

	return that.sendMessage(bufrw, msg.Action, Payload{Room: state.Room, Game: state, Presence: presence})
}

func (that *Server) handleGameMove(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleGameMove")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	if payloadReq.Cell == nil {
		return that.sendErrorResponse(bufrw, msg.Action, "cell is required")
	}

	state, err := that.gameplay.MakeMove(ctx, payloadReq.RoomID, payloadReq.User.ID, payloadReq.Cell.X, payloadReq.Cell.Y)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			log.Error("failed to make move", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		}

		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	log.Info("move made",
		"roomID", payloadReq.RoomID,
		"userID", payloadReq.User.ID,
		"x", payloadReq.Cell.X,
		"y", payloadReq.Cell.Y,
		"moveNumber", state.Moves,
	)

	return that.sendMessage(bufrw, msg.Action, Payload{Game: state})
}

func (that *Server) handleGameSurrender(ctx context.Context, msg *Message, bufrw *bufio.ReadWriter) error {
	log := that.logger.With("method", "handleGameSurrender")

	payloadReq, err := that.parseRoomPayload(msg, bufrw)
	if payloadReq == nil {
		return err
	}

	room, err := that.gameplay.Surrender(ctx, payloadReq.RoomID, payloadReq.User.ID)
	if err != nil {
		log.Error("failed to surrender", "roomID", payloadReq.RoomID, "userID", payloadReq.User.ID, "error", err)
		return that.sendErrorResponse(bufrw, msg.Action, err.Error())
	}

	log.Info("user surrendered", "roomID", room.ID, "userID", payloadReq.User.ID)

	return that.sendMessage(bufrw, msg.Action, Payload{Room: room})
}

// parseUserPayload unmarshals the message payload and requires a user id.
// On a bad payload it answers the client directly and returns a nil
// payload, so callers just propagate the returned error.
func (that *Server) parseUserPayload(msg *Message, bufrw *bufio.ReadWriter) (*Payload, error) {
	var payloadReq Payload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.User == nil || payloadReq.User.ID == "" {
		return nil, that.sendErrorResponse(bufrw, msg.Action, "user is required")
	}

	that.registerConnection(payloadReq.User.ID, bufrw)

	return &payloadReq, nil
}

func (that *Server) parseRoomPayload(msg *Message, bufrw *bufio.ReadWriter) (*Payload, error) {
	payloadReq, err := that.parseUserPayload(msg, bufrw)
	if payloadReq == nil {
		return nil, err
	}

	if payloadReq.RoomID == "" {
		return nil, that.sendErrorResponse(bufrw, msg.Action, "room_id is required")
	}

	return payloadReq, nil
}

func (that *Server) sendErrorResponse(bufrw *bufio.ReadWriter, action, errorMsg string) error {
	payload := Payload{Error: errorMsg}
	if err := that.sendMessage(bufrw, action, payload); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
