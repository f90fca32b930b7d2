package session

import (
	"fmt"
	"net/url"
	"strconv"
)

// RequestKind selects which kind of session to open.
type RequestKind int

const (
	KindNewGame RequestKind = iota
	KindLoadByID
	KindDaily
)

func (k RequestKind) String() string {
	switch k {
	case KindNewGame:
		return "new"
	case KindLoadByID:
		return "id"
	case KindDaily:
		return "daily"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// Request describes a session to open. Build one with NewGame, LoadByID or Daily.
type Request struct {
	Kind RequestKind
	Size int    // KindNewGame only
	ID   string // KindLoadByID only
	Time int    // optional time budget in seconds; 0 lets the server decide
}

// NewGame requests a freshly generated size×size grid.
func NewGame(size, seconds int) Request {
	return Request{Kind: KindNewGame, Size: size, Time: seconds}
}

// LoadByID requests an existing game by its server id.
func LoadByID(id string, seconds int) Request {
	return Request{Kind: KindLoadByID, ID: id, Time: seconds}
}

// Daily requests today's shared game.
func Daily() Request {
	return Request{Kind: KindDaily}
}

// Validate rejects requests that cannot be turned into an endpoint. Grid size
// bounds are left to the server.
func (r Request) Validate() error {
	if r.Time < 0 {
		return fmt.Errorf("%w: negative time %d", ErrInvalidRequest, r.Time)
	}
	switch r.Kind {
	case KindNewGame:
		if r.Size < 1 {
			return fmt.Errorf("%w: size %d", ErrInvalidRequest, r.Size)
		}
	case KindLoadByID:
		if r.ID == "" {
			return fmt.Errorf("%w: empty game id", ErrInvalidRequest)
		}
	case KindDaily:
	default:
		return fmt.Errorf("%w: kind %v", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// Endpoints builds channel URLs for a game server.
type Endpoints struct {
	base *url.URL
}

// NewEndpoints parses the server base URL. http(s) and ws(s) schemes are accepted.
func NewEndpoints(baseURL string) (Endpoints, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return Endpoints{}, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoints{}, fmt.Errorf("server url %q has no host", baseURL)
	}
	return Endpoints{base: u}, nil
}

// SessionURL returns the websocket URL that opens the session described by r.
func (e Endpoints) SessionURL(r Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if e.base == nil {
		return "", fmt.Errorf("%w: endpoints not configured", ErrInvalidRequest)
	}

	var u *url.URL
	switch r.Kind {
	case KindNewGame:
		u = e.base.JoinPath("game", "ws", "new", strconv.Itoa(r.Size))
	case KindLoadByID:
		u = e.base.JoinPath("game", "ws", "id", r.ID)
	case KindDaily:
		u = e.base.JoinPath("game", "ws", "daily")
	}

	q := url.Values{}
	if r.Time > 0 && r.Kind != KindDaily {
		q.Set("time", strconv.Itoa(r.Time))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
