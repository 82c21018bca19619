package entity

import "time"

// Move is one immutable entry of the per-match ledger. Sequence numbers
// start at 1 and are assigned by the ledger on append.
type Move struct {
	MatchID   string    `json:"match_id"`
	PlayerID  string    `json:"player_id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}
