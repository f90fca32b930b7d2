package session

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrChannelOpen is returned when a session is started while a channel is
	// still open or opening. Reset must be called first.
	ErrChannelOpen = errors.New("session channel already open")

	// ErrNotPreGame is returned when starting a session that has already
	// received its setup.
	ErrNotPreGame = errors.New("session is not in PreGame")

	// ErrNotActive is returned when guessing outside of Active.
	ErrNotActive = errors.New("session is not active")

	// ErrChannelNotOpen is returned when guessing before the channel is attached.
	ErrChannelNotOpen = errors.New("session channel is not open")

	// ErrChannelClosed is returned by a channel after Close, and is the cause
	// recorded when the server drops the channel mid-session.
	ErrChannelClosed = errors.New("session channel closed")

	// ErrSessionFailed is returned by every operation except Reset once the
	// session has hit a fatal error.
	ErrSessionFailed = errors.New("session failed, reset required")

	// ErrProtocolViolation marks a message that is not allowed in the
	// current phase.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrMalformedMessage marks a message that could not be decoded or whose
	// payload is unusable.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType marks a message whose type tag is not recognised.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrServerTimeout is recorded when the optional grace period elapses
	// without a gameOver from the server.
	ErrServerTimeout = errors.New("no gameOver received before grace period elapsed")

	// ErrInvalidRequest is returned for a session request that cannot be sent.
	ErrInvalidRequest = errors.New("invalid session request")
)

// OpenError is a recoverable failure to open a session channel, usually the
// server refusing the handshake with a message for the user.
type OpenError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *OpenError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("open session: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("open session: %v", e.Err)
	}
	return fmt.Sprintf("open session: status %d", e.StatusCode)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the player for this failure.
func (e *OpenError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return http.StatusText(e.StatusCode)
	}
	return "Unable to reach the game server"
}
