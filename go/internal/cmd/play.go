package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordtwist/go/clients"
	"github.com/mcdev12/wordtwist/go/internal/board"
	"github.com/mcdev12/wordtwist/go/internal/prefs"
	"github.com/mcdev12/wordtwist/go/internal/selection"
	"github.com/mcdev12/wordtwist/go/internal/session"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  new [size] [time]     start a new game
  load <id> [time]      join a game by id
  daily                 play today's game
  score [id]            show your recorded score for a game
  trace r,c r,c ...     select a path and submit it
  down r,c | over r,c | up
  show                  redraw the board
  reset                 abandon the current game
  quit`

// gameClient is the part of session.Client the terminal uses.
type gameClient interface {
	Session() session.Session
	StartSession(ctx context.Context, req session.Request) error
	SubmitGuess(word string) error
	Reset()
}

// optionStore remembers new-game settings between runs.
type optionStore interface {
	LoadGameOptions(def prefs.GameOptions) (prefs.GameOptions, error)
	SaveGameOptions(opts prefs.GameOptions) error
}

// scoreLookup reads a logged-in player's recorded scores.
type scoreLookup interface {
	GetScore(ctx context.Context, gameID string) (int, error)
}

// terminal drives one session.Client from typed commands. Commands run on a
// single goroutine; session snapshots and notices may arrive on others.
type terminal struct {
	client   gameClient
	options  optionStore
	defaults prefs.GameOptions
	// scores is nil for anonymous players.
	scores scoreLookup

	tracker   *selection.Tracker
	trackedID string

	outMu        sync.Mutex
	out          io.Writer
	lastRendered renderKey
}

// renderKey is the part of a snapshot that warrants redrawing the board.
type renderKey struct {
	id          string
	phase       session.Phase
	score       int
	found       int
	channelOpen bool
	failed      bool
}

func newTerminal(out io.Writer, options optionStore, defaults prefs.GameOptions) *terminal {
	t := &terminal{out: out, options: options, defaults: defaults}
	t.tracker = selection.NewTracker(board.Grid{}, t.guess)
	return t
}

// run reads commands from in until quit, EOF or ctx is cancelled.
func (t *terminal) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	t.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := t.execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				t.printf("error: %v\n", err)
			}
		}
	}
}

func (t *terminal) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "new":
		return t.newGame(ctx, args)
	case "load":
		if len(args) < 1 {
			return fmt.Errorf("usage: load <id> [time]")
		}
		seconds, err := optionalInt(args[1:], 0, "time")
		if err != nil {
			return err
		}
		if err := t.start(ctx, session.LoadByID(args[0], seconds)); err != nil {
			return err
		}
		if t.scores != nil {
			if err := t.showScore(ctx, args[0]); err != nil {
				log.Warn().Err(err).Str("game_id", args[0]).Msg("failed to look up recorded score")
			}
		}
		return nil
	case "daily":
		return t.start(ctx, session.Daily())
	case "score":
		id := t.client.Session().ID
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			return fmt.Errorf("usage: score <id>")
		}
		if t.scores == nil {
			return fmt.Errorf("recorded scores need a username and session cookie")
		}
		return t.showScore(ctx, id)
	case "trace":
		return t.trace(args)
	case "down", "over":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s r,c", cmd)
		}
		cell, err := parseCell(args[0])
		if err != nil {
			return err
		}
		if err := t.syncTracker(); err != nil {
			return err
		}
		if cmd == "down" {
			t.tracker.PointerDown(cell)
		} else {
			t.tracker.PointerOver(cell)
		}
		t.show()
		return nil
	case "up":
		if err := t.syncTracker(); err != nil {
			return err
		}
		t.tracker.PointerUp()
		return nil
	case "show":
		_ = t.syncTracker()
		t.show()
		return nil
	case "reset":
		t.client.Reset()
		return nil
	case "help", "?":
		t.printf("%s\n", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (t *terminal) newGame(ctx context.Context, args []string) error {
	opts, err := t.options.LoadGameOptions(t.defaults)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load game options, using defaults")
		opts = t.defaults
	}
	if opts.Size, err = optionalInt(args, opts.Size, "size"); err != nil {
		return err
	}
	if len(args) > 1 {
		if opts.Time, err = optionalInt(args[1:], opts.Time, "time"); err != nil {
			return err
		}
	}

	req := session.NewGame(opts.Size, opts.Time)
	if err := req.Validate(); err != nil {
		return err
	}
	if err := t.options.SaveGameOptions(opts); err != nil {
		log.Warn().Err(err).Msg("failed to save game options")
	}
	return t.start(ctx, req)
}

// start abandons whatever session is loaded and opens a new one.
func (t *terminal) start(ctx context.Context, req session.Request) error {
	t.client.Reset()
	return t.client.StartSession(ctx, req)
}

// showScore prints the recorded score for gameID, if there is one.
func (t *terminal) showScore(ctx context.Context, gameID string) error {
	score, err := t.scores.GetScore(ctx, gameID)
	switch {
	case errors.Is(err, clients.ErrNoScore):
		t.printf("no recorded score for game %s\n", gameID)
		return nil
	case err != nil:
		return err
	}
	t.printf("recorded score for game %s: %d\n", gameID, score)
	return nil
}

func (t *terminal) trace(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: trace r,c r,c ...")
	}
	cells := make([]board.Cell, 0, len(args))
	for _, arg := range args {
		cell, err := parseCell(arg)
		if err != nil {
			return err
		}
		cells = append(cells, cell)
	}
	if err := t.syncTracker(); err != nil {
		return err
	}
	if t.tracker.Active() {
		return fmt.Errorf("a selection is in progress, finish it with up first")
	}

	t.tracker.PointerDown(cells[0])
	for _, cell := range cells[1:] {
		t.tracker.PointerOver(cell)
	}
	t.tracker.PointerUp()
	return nil
}

// syncTracker points the tracker at the grid of the current session, and
// fails unless a game is being played.
func (t *terminal) syncTracker() error {
	s := t.client.Session()
	if s.ID != t.trackedID {
		t.trackedID = s.ID
		t.tracker.Reset(s.Grid)
	}
	if s.Phase != session.Active {
		return fmt.Errorf("no game in progress")
	}
	return nil
}

func (t *terminal) guess(word string) {
	if err := t.client.SubmitGuess(word); err != nil {
		t.printf("guess %q not sent: %v\n", word, err)
	}
}

func (t *terminal) show() {
	var b strings.Builder
	renderSession(&b, t.client.Session(), t.tracker.Selected)
	t.printf("%s", b.String())
}

// onSession is the session.Client change callback. Countdown ticks only
// print the clock, and only now and then.
func (t *terminal) onSession(s session.Session) {
	var b strings.Builder

	t.outMu.Lock()
	defer t.outMu.Unlock()

	key := renderKey{s.ID, s.Phase, s.Score, len(s.FoundWords), s.ChannelOpen, s.Err != nil}
	if key == t.lastRendered {
		if s.Phase == session.Active && (s.RemainingSeconds%30 == 0 || s.RemainingSeconds <= 10) {
			fmt.Fprintf(t.out, "  %ds left\n", s.RemainingSeconds)
		}
		return
	}
	t.lastRendered = key

	renderSession(&b, s, nil)
	io.WriteString(t.out, b.String())
}

// onNotice is the notice.Board change callback.
func (t *terminal) onNotice(message string) {
	if message != "" {
		t.printf("! %s\n", message)
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// renderSession draws the board and tallies. Selected cells are shown in
// upper case when selected is non-nil.
func renderSession(w io.Writer, s session.Session, selected func(board.Cell) bool) {
	if s.Err != nil {
		fmt.Fprintf(w, "game failed: %v (reset to continue)\n", s.Err)
		return
	}
	if s.Phase == session.PreGame {
		if s.ChannelOpen {
			fmt.Fprintln(w, "waiting for the game to start...")
		}
		return
	}

	fmt.Fprintf(w, "game %s | %s | %ds left | score %d\n", s.ID, s.Phase, s.RemainingSeconds, s.Score)
	for r, row := range s.Grid.Rows() {
		cells := make([]string, len(row))
		for c, letter := range row {
			if selected != nil && selected(board.Cell{Row: r, Col: c}) {
				letter = strings.ToUpper(letter)
			}
			cells[c] = fmt.Sprintf("%-2s", letter)
		}
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(strings.Join(cells, " "), " "))
	}

	if len(s.FoundWords) > 0 {
		fmt.Fprintf(w, "found: %s\n", strings.Join(s.FoundWords, ", "))
	}
	if s.Phase == session.PostGame {
		fmt.Fprintf(w, "missed: %s\n", strings.Join(s.MissedWords, ", "))
		fmt.Fprintf(w, "final score: %d\n", s.Score)
	}
}

func parseCell(s string) (board.Cell, error) {
	row, col, ok := strings.Cut(s, ",")
	if !ok {
		return board.Cell{}, fmt.Errorf("invalid cell %q, expected row,col", s)
	}
	r, err := strconv.Atoi(strings.TrimSpace(row))
	if err != nil {
		return board.Cell{}, fmt.Errorf("invalid row in %q: %w", s, err)
	}
	c, err := strconv.Atoi(strings.TrimSpace(col))
	if err != nil {
		return board.Cell{}, fmt.Errorf("invalid column in %q: %w", s, err)
	}
	return board.Cell{Row: r, Col: c}, nil
}

// optionalInt parses args[0] when present.
func optionalInt(args []string, def int, name string) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[0])
	}
	return v, nil
}
