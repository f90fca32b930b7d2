package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoScore means the logged-in player has no recorded score for a game.
var ErrNoScore = errors.New("no score recorded for this game")

// ScoreClient submits and looks up finished-game scores on the game server.
type ScoreClient struct {
	*BaseClient
}

func NewScoreClient(serverURL, sessionCookie string) *ScoreClient {
	client := &ScoreClient{
		BaseClient: NewBaseClient(serverURL),
	}
	if sessionCookie != "" {
		client.SetHeader("Cookie", sessionCookie)
	}
	return client
}

type scoreRequest struct {
	Score int `json:"score"`
	Time  int `json:"time"`
}

// SubmitScore posts the score of a finished game. The server answers 201 on
// success and refuses anonymous or repeated submissions.
func (c *ScoreClient) SubmitScore(ctx context.Context, gameID string, score, seconds int) error {
	if gameID == "" {
		return fmt.Errorf("submit score: empty game id")
	}

	body, err := json.Marshal(scoreRequest{Score: score, Time: seconds})
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}

	if _, err := c.Post(ctx, scorePath(gameID), bytes.NewReader(body)); err != nil {
		return fmt.Errorf("submit score for game %s: %w", gameID, err)
	}
	return nil
}

// GetScore returns the logged-in player's recorded score for a game. The
// server answers with the bare number; a 404 is reported as ErrNoScore and
// an anonymous session gets a 401 *StatusError.
func (c *ScoreClient) GetScore(ctx context.Context, gameID string) (int, error) {
	if gameID == "" {
		return 0, fmt.Errorf("get score: empty game id")
	}

	body, err := c.Get(ctx, scorePath(gameID))
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("game %s: %w", gameID, ErrNoScore)
		}
		return 0, fmt.Errorf("get score for game %s: %w", gameID, err)
	}

	score, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse score %q: %w", body, err)
	}
	return score, nil
}

func scorePath(gameID string) string {
	return "/game/" + url.PathEscape(gameID) + "/score"
}
