package session

import (
	"unicode/utf8"

	"github.com/mcdev12/wordtwist/go/internal/board"
)

// Session is a read-only snapshot of one game. Views receive copies; only
// the Client mutates the original.
type Session struct {
	ID                string
	Grid              board.Grid
	TimeBudgetSeconds int
	RemainingSeconds  int
	FoundWords        []string
	MissedWords       []string
	Score             int
	Phase             Phase
	ChannelOpen       bool
	// Err is the fatal error that ended the session, if any.
	Err error
}

// Results is what a finished session reports to its side effects.
type Results struct {
	GameID            string   `json:"game_id"`
	Username          string   `json:"username,omitempty"`
	Score             int      `json:"score"`
	TimeBudgetSeconds int      `json:"time"`
	FoundWords        []string `json:"found_words"`
	MissedWords       []string `json:"missed_words"`
}

// WordScore is the points awarded for a valid word: 2^letters.
func WordScore(word string) int {
	n := utf8.RuneCountInString(word)
	if n >= 62 {
		n = 62
	}
	return 1 << n
}

func (s Session) clone() Session {
	s.FoundWords = append([]string(nil), s.FoundWords...)
	s.MissedWords = append([]string(nil), s.MissedWords...)
	return s
}

// wordSet is an insertion-ordered set of words.
type wordSet struct {
	order []string
	seen  map[string]struct{}
}

func newWordSet(words ...string) *wordSet {
	s := &wordSet{seen: make(map[string]struct{})}
	for _, w := range words {
		s.add(w)
	}
	return s
}

func (s *wordSet) add(word string) bool {
	if _, ok := s.seen[word]; ok {
		return false
	}
	s.seen[word] = struct{}{}
	s.order = append(s.order, word)
	return true
}

func (s *wordSet) list() []string {
	return append([]string(nil), s.order...)
}
