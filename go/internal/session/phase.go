package session

import "fmt"

// Phase is the lifecycle stage of a session.
type Phase int

const (
	// PreGame: no setup received yet. A channel may be opening or open.
	PreGame Phase = iota
	// Active: grid received, countdown running, guesses accepted.
	Active
	// PostGame: results received from the server; the session is frozen.
	PostGame
)

func (p Phase) String() string {
	switch p {
	case PreGame:
		return "PreGame"
	case Active:
		return "Active"
	case PostGame:
		return "PostGame"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
