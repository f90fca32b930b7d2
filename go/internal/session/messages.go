package session

import (
	"encoding/json"
	"fmt"
)

// MessageType tags every server → client message.
type MessageType string

const (
	MessageTypeSetup         MessageType = "setup"
	MessageTypeGuessResponse MessageType = "guessResponse"
	MessageTypeGameOver      MessageType = "gameOver"
)

// Message is a decoded server message.
type Message interface {
	Type() MessageType
}

// SetupMessage carries the grid and time budget that start a game.
type SetupMessage struct {
	Time int      `json:"time"`
	Game GameData `json:"game"`
}

// GameData is the game description inside a setup message.
type GameData struct {
	ID   string `json:"id"`
	Data struct {
		Grid [][]string `json:"grid"`
	} `json:"data"`
}

// GuessResponseMessage is the server's verdict on one guess.
type GuessResponseMessage struct {
	Word  string `json:"word"`
	Valid bool   `json:"valid"`
}

// GameOverMessage carries the authoritative results of a finished game.
type GameOverMessage struct {
	Results ResultsPayload `json:"results"`
}

// ResultsPayload is the results block of a gameOver message.
type ResultsPayload struct {
	FoundWords  []string `json:"foundWords"`
	MissedWords []string `json:"missedWords"`
	Score       int      `json:"score"`
}

func (*SetupMessage) Type() MessageType { return MessageTypeSetup }
func (*GuessResponseMessage) Type() MessageType { return MessageTypeGuessResponse }
func (*GameOverMessage) Type() MessageType { return MessageTypeGameOver }

// DecodeMessage parses a raw frame into its typed message.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg Message
	switch envelope.Type {
	case MessageTypeSetup:
		msg = &SetupMessage{}
	case MessageTypeGuessResponse:
		msg = &GuessResponseMessage{}
	case MessageTypeGameOver:
		msg = &GameOverMessage{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, envelope.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, envelope.Type, err)
	}
	return msg, nil
}
