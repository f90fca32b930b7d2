package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeChannel struct {
	mu      sync.Mutex
	handler Handler
	sent    []string
	closed  bool
}

func (f *fakeChannel) ID() string { return "fake" }

func (f *fakeChannel) Send(word string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrChannelClosed
	}
	f.sent = append(f.sent, word)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) sentWords() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// receive feeds a server frame through the handler given to Dial.
func (f *fakeChannel) receive(t *testing.T, raw string) {
	t.Helper()
	f.handler.OnMessage([]byte(raw))
}

type fakeDialer struct {
	urls     []string
	channels []*fakeChannel
	err      error
}

func (d *fakeDialer) Dial(ctx context.Context, url string, h Handler) (Channel, error) {
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	ch := &fakeChannel{handler: h}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) last() *fakeChannel {
	return d.channels[len(d.channels)-1]
}

type recordedScore struct {
	gameID  string
	score   int
	seconds int
}

type fakeScores struct {
	calls []recordedScore
	err   error
}

func (s *fakeScores) SubmitScore(ctx context.Context, gameID string, score, seconds int) error {
	s.calls = append(s.calls, recordedScore{gameID, score, seconds})
	return s.err
}

type fakePublisher struct {
	results []Results
}

func (p *fakePublisher) PublishResults(ctx context.Context, r Results) error {
	p.results = append(p.results, r)
	return nil
}

type fakeNotices struct {
	messages []string
}

func (n *fakeNotices) Show(message string) {
	n.messages = append(n.messages, message)
}

type harness struct {
	client    *Client
	dialer    *fakeDialer
	clock     *clockwork.FakeClock
	scores    *fakeScores
	publisher *fakePublisher
	notices   *fakeNotices
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	endpoints, err := NewEndpoints("http://wordtwist.test")
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}

	h := &harness{
		dialer:    &fakeDialer{},
		clock:     clockwork.NewFakeClock(),
		scores:    &fakeScores{},
		publisher: &fakePublisher{},
		notices:   &fakeNotices{},
	}
	cfg := Config{
		Endpoints: endpoints,
		Dialer:    h.dialer,
		Clock:     h.clock,
		Username:  "ada",
		Scores:    h.scores,
		Publisher: h.publisher,
		Notices:   h.notices,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.client = NewClient(cfg)
	h.client.spawn = func(f func()) { f() }
	t.Cleanup(h.client.Reset)
	return h
}

func (h *harness) start(t *testing.T, req Request) *fakeChannel {
	t.Helper()
	if err := h.client.StartSession(context.Background(), req); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !h.client.Session().ChannelOpen {
		t.Fatal("channel not attached after start")
	}
	return h.dialer.last()
}

func setupFrame(id string, seconds int) string {
	return fmt.Sprintf(`{"type":"setup","time":%d,"game":{"id":%q,"data":{"grid":[["a","b","c"],["x","y","z"],["d","o","g"]]}}}`, seconds, id)
}

func guessFrame(word string, valid bool) string {
	return fmt.Sprintf(`{"type":"guessResponse","word":%q,"valid":%t}`, word, valid)
}

func TestStartSessionDialsRequestEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, NewGame(5, 120))

	if len(h.dialer.urls) != 1 || h.dialer.urls[0] != "ws://wordtwist.test/game/ws/new/5?time=120" {
		t.Fatalf("unexpected dial urls %v", h.dialer.urls)
	}
	if s := h.client.Session(); s.Phase != PreGame {
		t.Fatalf("expected PreGame before setup, got %s", s.Phase)
	}
}

func TestStartSessionWhileOpenIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, Daily())

	err := h.client.StartSession(context.Background(), Daily())
	if !errors.Is(err, ErrChannelOpen) {
		t.Fatalf("expected ErrChannelOpen, got %v", err)
	}
	if len(h.dialer.urls) != 1 {
		t.Fatalf("second start dialed again: %v", h.dialer.urls)
	}

	h.client.Reset()
	h.start(t, Daily())
	if len(h.dialer.urls) != 2 {
		t.Fatalf("expected a fresh dial after reset, got %v", h.dialer.urls)
	}
}

func TestStartSessionInvalidRequest(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.client.StartSession(context.Background(), LoadByID("", 0)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(h.dialer.urls) != 0 {
		t.Fatal("invalid request should not dial")
	}
}

func TestOpenFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.err = &OpenError{StatusCode: 400, Message: "Invalid game size. Games can be of size 3-7 inclusive."}

	if err := h.client.StartSession(context.Background(), NewGame(9, 60)); err != nil {
		t.Fatalf("start is asynchronous and should not fail: %v", err)
	}

	if len(h.notices.messages) != 1 || h.notices.messages[0] != "Invalid game size. Games can be of size 3-7 inclusive." {
		t.Fatalf("unexpected notices %v", h.notices.messages)
	}
	s := h.client.Session()
	if s.Phase != PreGame || s.ChannelOpen || s.Err != nil {
		t.Fatalf("expected clean PreGame after open failure, got %+v", s)
	}

	// The player can retry without resetting.
	h.dialer.err = nil
	h.start(t, NewGame(5, 60))
}

func TestOpenFailureWithoutServerMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.err = errors.New("connection refused")

	if err := h.client.StartSession(context.Background(), Daily()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(h.notices.messages) != 1 || h.notices.messages[0] != "Unable to reach the game server" {
		t.Fatalf("unexpected notices %v", h.notices.messages)
	}
}

func TestSetupActivatesSession(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, NewGame(3, 0))

	ch.receive(t, setupFrame("g-1", 90))

	s := h.client.Session()
	if s.Phase != Active {
		t.Fatalf("expected Active, got %s", s.Phase)
	}
	if s.ID != "g-1" || s.TimeBudgetSeconds != 90 || s.RemainingSeconds != 90 {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.Grid.Size() != 3 || s.Grid.Rows()[2][1] != "o" {
		t.Fatalf("unexpected grid %v", s.Grid.Rows())
	}
}

func TestSetupFallsBackToRequestedTime(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, LoadByID("g-2", 45))

	ch.receive(t, setupFrame("g-2", 0))

	if s := h.client.Session(); s.TimeBudgetSeconds != 45 {
		t.Fatalf("expected requested budget 45, got %d", s.TimeBudgetSeconds)
	}
}

func TestSecondSetupIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	err := h.client.HandleMessage([]byte(setupFrame("g-2", 60)))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}

	s := h.client.Session()
	if !errors.Is(s.Err, ErrProtocolViolation) {
		t.Fatalf("expected failure recorded on session, got %v", s.Err)
	}
	if s.ID != "g-1" {
		t.Fatalf("second setup should not have been applied, id %q", s.ID)
	}
	if !ch.isClosed() {
		t.Fatal("channel should be closed after a fatal error")
	}
	if err := h.client.SubmitGuess("cat"); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	if err := h.client.StartSession(context.Background(), Daily()); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed on restart, got %v", err)
	}

	h.client.Reset()
	if s := h.client.Session(); s.Err != nil || s.Phase != PreGame {
		t.Fatalf("reset should clear the failure, got %+v", s)
	}
}

func TestMessagesBeforeSetupAreFatal(t *testing.T) {
	frames := []string{
		guessFrame("cat", true),
		`{"type":"gameOver","results":{"foundWords":[],"missedWords":[],"score":0}}`,
	}
	for _, frame := range frames {
		h := newHarness(t, nil)
		ch := h.start(t, Daily())
		ch.receive(t, frame)

		s := h.client.Session()
		if !errors.Is(s.Err, ErrProtocolViolation) {
			t.Fatalf("frame %s: expected protocol violation, got %v", frame, s.Err)
		}
		if s.Phase != PreGame {
			t.Fatalf("frame %s: phase changed to %s", frame, s.Phase)
		}
	}
}

func TestSetupWithoutChannelIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	err := h.client.HandleMessage([]byte(setupFrame("g-1", 60)))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestMalformedAndUnknownMessagesAreFatal(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{`{"type":"chat"}`, ErrUnknownMessageType},
		{`{not json`, ErrMalformedMessage},
		{`{"type":"setup","time":60,"game":{"id":"g","data":{"grid":[["a","b"]]}}}`, ErrMalformedMessage},
		{`{"type":"setup","time":60,"game":{"data":{"grid":[["a"]]}}}`, ErrMalformedMessage},
	}
	for _, tt := range tests {
		h := newHarness(t, nil)
		ch := h.start(t, Daily())
		ch.receive(t, tt.frame)

		if s := h.client.Session(); !errors.Is(s.Err, tt.want) {
			t.Fatalf("frame %s: expected %v, got %v", tt.frame, tt.want, s.Err)
		}
		if !ch.isClosed() {
			t.Fatalf("frame %s: channel left open", tt.frame)
		}
	}
}

func TestSubmitGuessRequiresActive(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.client.SubmitGuess("cat"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}

	ch := h.start(t, Daily())
	if err := h.client.SubmitGuess("cat"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive before setup, got %v", err)
	}

	ch.receive(t, setupFrame("g-1", 60))
	if err := h.client.SubmitGuess("cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.client.SubmitGuess("x"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := ch.sentWords(); len(got) != 2 || got[0] != "cat" || got[1] != "x" {
		t.Fatalf("unexpected sent words %v", got)
	}
}

func TestDuplicateValidGuessScoresOnce(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	ch.receive(t, guessFrame("cat", true))
	ch.receive(t, guessFrame("dog", true))
	ch.receive(t, guessFrame("cat", true))

	s := h.client.Session()
	if s.Score != 16 {
		t.Fatalf("expected 2^3 + 2^3 = 16, got %d", s.Score)
	}
	if len(s.FoundWords) != 2 || s.FoundWords[0] != "cat" || s.FoundWords[1] != "dog" {
		t.Fatalf("unexpected found words %v", s.FoundWords)
	}
}

func TestGuessResponsesNeverChangePhase(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	ch.receive(t, guessFrame("zzz", false))
	ch.receive(t, guessFrame("words", true))
	ch.receive(t, guessFrame("a", false))

	s := h.client.Session()
	if s.Phase != Active {
		t.Fatalf("expected Active, got %s", s.Phase)
	}
	if s.Score != 32 || len(s.FoundWords) != 1 {
		t.Fatalf("unexpected tally %d %v", s.Score, s.FoundWords)
	}
}

func TestGameOverAdoptsServerResults(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, NewGame(5, 120))

	grid := `[["a","b","c","d","e"],["f","g","h","i","j"],["k","l","m","n","o"],["p","q","r","s","t"],["u","v","w","x","y"]]`
	ch.receive(t, `{"type":"setup","time":120,"game":{"id":"g-5","data":{"grid":`+grid+`}}}`)

	if err := h.client.SubmitGuess("ab"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ch.receive(t, guessFrame("ab", false))
	if s := h.client.Session(); s.Score != 0 || len(s.FoundWords) != 0 {
		t.Fatalf("rejected guess changed state: %+v", s)
	}

	ch.receive(t, `{"type":"gameOver","results":{"foundWords":["ab"],"missedWords":["xy"],"score":8}}`)

	s := h.client.Session()
	if s.Phase != PostGame {
		t.Fatalf("expected PostGame, got %s", s.Phase)
	}
	if s.Score != 8 {
		t.Fatalf("expected server score 8, got %d", s.Score)
	}
	if len(s.FoundWords) != 1 || s.FoundWords[0] != "ab" || len(s.MissedWords) != 1 || s.MissedWords[0] != "xy" {
		t.Fatalf("unexpected results %v %v", s.FoundWords, s.MissedWords)
	}
	if s.ChannelOpen || !ch.isClosed() {
		t.Fatal("channel should be closed after gameOver")
	}

	if len(h.scores.calls) != 1 || h.scores.calls[0] != (recordedScore{"g-5", 8, 120}) {
		t.Fatalf("unexpected score submissions %+v", h.scores.calls)
	}
	if len(h.publisher.results) != 1 || h.publisher.results[0].Username != "ada" {
		t.Fatalf("unexpected published results %+v", h.publisher.results)
	}

	if err := h.client.SubmitGuess("cd"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after game over, got %v", err)
	}
}

func TestGameOverOverridesLocalTally(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, guessFrame("cat", true))
	ch.receive(t, guessFrame("dogs", true))

	ch.receive(t, `{"type":"gameOver","results":{"foundWords":["cat"],"missedWords":["dogs"],"score":3}}`)

	s := h.client.Session()
	if s.Score != 3 || len(s.FoundWords) != 1 {
		t.Fatalf("expected server tally to win, got %d %v", s.Score, s.FoundWords)
	}
}

func TestMessagesAfterGameOverAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":["cab"],"score":0}}`)

	ch.receive(t, guessFrame("cab", true))
	ch.receive(t, setupFrame("g-2", 60))

	s := h.client.Session()
	if s.Phase != PostGame || s.Score != 0 || s.ID != "g-1" || s.Err != nil {
		t.Fatalf("frozen session changed: %+v", s)
	}
}

func TestAnonymousPlayerDoesNotSubmitScore(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Username = "" })
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":[],"score":0}}`)

	if len(h.scores.calls) != 0 {
		t.Fatalf("anonymous score submitted: %+v", h.scores.calls)
	}
	if len(h.publisher.results) != 1 {
		t.Fatal("results should still be published")
	}
}

func TestScoreSubmissionFailureDoesNotAffectResults(t *testing.T) {
	h := newHarness(t, nil)
	h.scores.err = errors.New("status 409")
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, `{"type":"gameOver","results":{"foundWords":["abc"],"missedWords":[],"score":8}}`)

	s := h.client.Session()
	if s.Phase != PostGame || s.Score != 8 || s.Err != nil {
		t.Fatalf("unexpected session after failed submission %+v", s)
	}
	if len(h.scores.calls) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(h.scores.calls))
	}
}

func TestChannelDropWhileActiveIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	ch.handler.OnClose(errors.New("connection reset"))

	s := h.client.Session()
	if !errors.Is(s.Err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", s.Err)
	}
	if s.ChannelOpen {
		t.Fatal("channel still reported open")
	}
}

func TestChannelCloseAfterGameOverIsExpected(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":[],"score":0}}`)

	ch.handler.OnClose(nil)

	if s := h.client.Session(); s.Err != nil || s.Phase != PostGame {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestResetIsIdempotentAndDropsStaleMessages(t *testing.T) {
	h := newHarness(t, nil)
	h.client.Reset()
	h.client.Reset()

	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))
	ch.receive(t, guessFrame("cat", true))

	h.client.Reset()
	h.client.Reset()

	if !ch.isClosed() {
		t.Fatal("reset should close the channel")
	}
	s := h.client.Session()
	if s.Phase != PreGame || s.ID != "" || s.Score != 0 || len(s.FoundWords) != 0 || s.Grid.Size() != 0 {
		t.Fatalf("reset left state behind: %+v", s)
	}

	// Frames still in flight on the old channel are ignored.
	ch.receive(t, guessFrame("dog", true))
	ch.handler.OnClose(nil)
	if s := h.client.Session(); s.Score != 0 || s.Err != nil {
		t.Fatalf("stale frame applied: %+v", s)
	}
}

func TestCountdownUpdatesRemainingAndStopsOnGameOver(t *testing.T) {
	h := newHarness(t, nil)
	ticks := make(chan int, 16)
	h.client.onChange = func(s Session) {
		if s.Phase == Active {
			ticks <- s.RemainingSeconds
		}
	}
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 3))
	<-ticks // setup itself

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("countdown ticker not registered: %v", err)
	}

	h.clock.Advance(time.Second)
	select {
	case r := <-ticks:
		if r != 2 {
			t.Fatalf("expected 2 remaining, got %d", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":[],"score":0}}`)
	h.clock.Advance(5 * time.Second)

	if s := h.client.Session(); s.RemainingSeconds != 2 || s.Phase != PostGame {
		t.Fatalf("countdown kept running after game over: %+v", s)
	}
}

func TestLocalCountdownExpiryDoesNotEndGame(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("countdown ticker not registered: %v", err)
	}
	h.clock.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for h.client.Session().RemainingSeconds != 0 {
		if time.Now().After(deadline) {
			t.Fatal("countdown never reached zero")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := h.client.Session()
	if s.Phase != Active || s.Err != nil {
		t.Fatalf("local expiry ended the session: %+v", s)
	}
	if err := h.client.SubmitGuess("late"); err != nil {
		t.Fatalf("guesses are still accepted until the server ends the game: %v", err)
	}
}

func TestGracePeriodFailsSessionWithoutGameOver(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.GracePeriod = 5 * time.Second })
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 10))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Countdown ticker plus the grace timer.
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("timers not registered: %v", err)
	}

	h.client.mu.Lock()
	h.client.stopTimersLocked()
	h.client.mu.Unlock()
	h.client.graceExpired(h.client.gen)

	s := h.client.Session()
	if !errors.Is(s.Err, ErrServerTimeout) {
		t.Fatalf("expected ErrServerTimeout, got %v", s.Err)
	}
	if !ch.isClosed() {
		t.Fatal("channel should be closed after the grace period")
	}
}

func TestGracePeriodTimerIsArmedForBudgetPlusGrace(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.GracePeriod = 5 * time.Second })
	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 10))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("timers not registered: %v", err)
	}

	// Stop the countdown so only the grace timer is left on the fake clock.
	h.client.mu.Lock()
	h.client.timer.Stop()
	h.client.mu.Unlock()

	h.clock.Advance(14 * time.Second)
	if s := h.client.Session(); s.Err != nil {
		t.Fatalf("grace fired early: %v", s.Err)
	}

	h.clock.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for h.client.Session().Err == nil {
		if time.Now().After(deadline) {
			t.Fatal("grace timer never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := h.client.Session(); !errors.Is(s.Err, ErrServerTimeout) {
		t.Fatalf("expected ErrServerTimeout, got %v", s.Err)
	}
}

// phaseLog records the phase of every snapshot handed to OnChange.
type phaseLog struct {
	mu     sync.Mutex
	phases []Phase
}

func (l *phaseLog) add(p Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, p)
}

func (l *phaseLog) last() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phases[len(l.phases)-1]
}

func TestSlowTickCannotOverwriteGameOver(t *testing.T) {
	h := newHarness(t, nil)
	seen := &phaseLog{}
	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.onChange = func(s Session) {
		if s.Phase == Active && s.RemainingSeconds == 59 {
			close(entered)
			<-release
		}
		seen.add(s.Phase)
	}

	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("countdown ticker not registered: %v", err)
	}
	h.clock.Advance(time.Second)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached OnChange")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":["dog"],"score":0}}`)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.client.Session().Phase != PostGame {
		if time.Now().After(deadline) {
			t.Fatal("gameOver never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("gameOver delivery did not finish")
	}
	if got := seen.last(); got != PostGame {
		t.Fatalf("last delivered snapshot is %s, want PostGame", got)
	}
}

func TestOlderSnapshotIsNotDelivered(t *testing.T) {
	h := newHarness(t, nil)
	seen := &phaseLog{}
	h.client.onChange = func(s Session) { seen.add(s.Phase) }

	ch := h.start(t, Daily())
	ch.receive(t, setupFrame("g-1", 60))

	h.client.mu.Lock()
	old := h.client.snapshotLocked()
	h.client.mu.Unlock()

	ch.receive(t, `{"type":"gameOver","results":{"foundWords":[],"missedWords":[],"score":0}}`)
	h.client.notify(old)

	if got := seen.last(); got != PostGame {
		t.Fatalf("stale %s snapshot delivered after PostGame", got)
	}
}
