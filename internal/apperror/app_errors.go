package apperror

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrMatchNotFound = errors.New("match not found")
	ErrUserNotFound  = errors.New("user not found")

	ErrRoomFull          = errors.New("room is full")
	ErrUserAlreadyInRoom = errors.New("user is already in an active room")
	ErrRoomNotWaiting    = errors.New("room is not waiting for players")
	ErrRoomNotPlaying    = errors.New("room has no game in progress")
	ErrGameNotFinished   = errors.New("game is not finished")
	ErrAlreadyReady      = errors.New("player is already ready")
	ErrMatchNotOngoing   = errors.New("match is not ongoing")
	ErrNotYourTurn       = errors.New("it's not your turn")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrAlreadyRequested  = errors.New("rematch is already requested")
	ErrNoRematchRequest  = errors.New("no rematch has been requested")
	ErrOwnRematchAccept  = errors.New("cannot accept own rematch request")

	ErrInvalidCell       = errors.New("cell is out of board bounds")
	ErrInvalidName       = errors.New("invalid room name")
	ErrInvalidVisibility = errors.New("invalid room visibility")

	ErrNotAPlayer = errors.New("user is not a player of this game")
)

// Kind groups sentinel errors into the categories transports map onto
// status codes. Conflicts signal a stale client view and are never retried
// by the core.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrUserAlreadyInRoom),
		errors.Is(err, ErrRoomNotWaiting),
		errors.Is(err, ErrRoomNotPlaying),
		errors.Is(err, ErrGameNotFinished),
		errors.Is(err, ErrAlreadyReady),
		errors.Is(err, ErrMatchNotOngoing),
		errors.Is(err, ErrNotYourTurn),
		errors.Is(err, ErrCellOccupied),
		errors.Is(err, ErrAlreadyRequested),
		errors.Is(err, ErrNoRematchRequest),
		errors.Is(err, ErrOwnRematchAccept):
		return KindConflict
	case errors.Is(err, ErrInvalidCell),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidVisibility):
		return KindValidation
	case errors.Is(err, ErrNotAPlayer):
		return KindForbidden
	default:
		return KindInternal
	}
}
