package entity

import (
	"time"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"

	PublicType  = "public"
	PrivateType = "private"

	RematchNone      = "none"
	RematchRequested = "requested"
	RematchAccepted  = "accepted"

	ResultWin  = "win"
	ResultLose = "lose"
	ResultDraw = "draw"

	RoomCapacity = 2
)

// RoomPlayer binds a user to a room together with the per-room substates:
// the ready flag before a match and the per-match result after it.
type RoomPlayer struct {
	UserID   string    `json:"user_id"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
	Ready    bool      `json:"ready"`
	Result   string    `json:"result,omitempty"`
}

type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	JoinCode string `json:"join_code,omitempty"`

	Players []*RoomPlayer `json:"players"`
	MatchID string        `json:"match_id,omitempty"`

	RematchState       string `json:"rematch_state"`
	RematchRequesterID string `json:"rematch_requester_id,omitempty"`
	NewRoomID          string `json:"new_room_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	GameEndedAt *time.Time `json:"game_ended_at,omitempty"`
}

func NewRoom(id, hostID, name, roomType string, now time.Time) *Room {
	return &Room{
		ID:     id,
		Name:   name,
		Status: StatusWaiting,
		Type:   roomType,
		Players: []*RoomPlayer{
			{UserID: hostID, IsHost: true, JoinedAt: now},
		},
		RematchState: RematchNone,
		CreatedAt:    now,
	}
}

func (that *Room) IsWaiting() bool  { return that.Status == StatusWaiting }
func (that *Room) IsPlaying() bool  { return that.Status == StatusPlaying }
func (that *Room) IsFinished() bool { return that.Status == StatusFinished }
func (that *Room) IsPublic() bool   { return that.Type == PublicType }
func (that *Room) IsFull() bool     { return len(that.Players) >= RoomCapacity }

func (that *Room) HostID() string {
	for _, player := range that.Players {
		if player.IsHost {
			return player.UserID
		}
	}

	return ""
}

func (that *Room) PlayerByID(userID string) *RoomPlayer {
	for _, player := range that.Players {
		if player.UserID == userID {
			return player
		}
	}

	return nil
}

func (that *Room) HasPlayer(userID string) bool {
	return that.PlayerByID(userID) != nil
}

// AddPlayer puts a user into the room. The at-most-one-active-room
// invariant is enforced by the repository against the binding index.
func (that *Room) AddPlayer(userID string, now time.Time) error {
	if !that.IsWaiting() {
		return apperror.ErrRoomNotWaiting
	}

	if that.IsFull() {
		return apperror.ErrRoomFull
	}

	that.Players = append(that.Players, &RoomPlayer{UserID: userID, JoinedAt: now})

	return nil
}

func (that *Room) RemovePlayer(userID string) error {
	for i, player := range that.Players {
		if player.UserID == userID {
			that.Players = append(that.Players[:i], that.Players[i+1:]...)
			return nil
		}
	}

	return apperror.ErrNotAPlayer
}

func (that *Room) MarkReady(userID string) error {
	if !that.IsWaiting() {
		return apperror.ErrRoomNotWaiting
	}

	player := that.PlayerByID(userID)
	if player == nil {
		return apperror.ErrNotAPlayer
	}

	if player.Ready {
		return apperror.ErrAlreadyReady
	}

	player.Ready = true

	return nil
}

func (that *Room) BothReady() bool {
	if !that.IsFull() {
		return false
	}

	for _, player := range that.Players {
		if !player.Ready {
			return false
		}
	}

	return true
}

// StartMatch transitions the room into playing state. The caller persists
// the room and the match in one transaction.
func (that *Room) StartMatch(matchID string) {
	that.Status = StatusPlaying
	that.MatchID = matchID
}

// Complete finalizes the room after a match resolved. It is idempotent: a
// second call on an already finished room changes nothing.
func (that *Room) Complete(winnerID string, now time.Time) {
	if that.IsFinished() {
		return
	}

	for _, player := range that.Players {
		switch {
		case winnerID == "":
			player.Result = ResultDraw
		case player.UserID == winnerID:
			player.Result = ResultWin
		default:
			player.Result = ResultLose
		}
	}

	that.Status = StatusFinished
	that.GameEndedAt = &now
}

// Close finalizes the room without per-player results, used when a match
// is aborted by a teardown rather than resolved. Idempotent like Complete.
func (that *Room) Close(now time.Time) {
	if that.IsFinished() {
		return
	}

	that.Status = StatusFinished
	that.GameEndedAt = &now
}

// Rematch negotiation is a two-phase state machine over a closed set of
// transitions: none -> requested -> accepted. Everything else is rejected.

func (that *Room) RequestRematch(userID string) error {
	if !that.IsFinished() {
		return apperror.ErrGameNotFinished
	}

	if !that.HasPlayer(userID) {
		return apperror.ErrNotAPlayer
	}

	if that.RematchState != RematchNone {
		return apperror.ErrAlreadyRequested
	}

	that.RematchState = RematchRequested
	that.RematchRequesterID = userID

	return nil
}

func (that *Room) AcceptRematch(userID, newRoomID string) error {
	if !that.HasPlayer(userID) {
		return apperror.ErrNotAPlayer
	}

	if that.RematchState != RematchRequested {
		return apperror.ErrNoRematchRequest
	}

	if that.RematchRequesterID == userID {
		return apperror.ErrOwnRematchAccept
	}

	that.RematchState = RematchAccepted
	that.NewRoomID = newRoomID

	return nil
}

// Reopen builds the follow-up room for an accepted rematch: a brand-new
// waiting room with the same two players and host, nobody ready.
func (that *Room) Reopen(newRoomID string, now time.Time) *Room {
	next := &Room{
		ID:           newRoomID,
		Name:         that.Name,
		Status:       StatusWaiting,
		Type:         that.Type,
		RematchState: RematchNone,
		CreatedAt:    now,
	}

	for _, player := range that.Players {
		next.Players = append(next.Players, &RoomPlayer{
			UserID:   player.UserID,
			IsHost:   player.IsHost,
			JoinedAt: now,
		})
	}

	return next
}
