package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/state"
)

// ErrClosed is returned by Start once the controller has been closed.
var ErrClosed = errors.New("game controller closed")

// Timings are the fixed durations of the presentation pipeline.
type Timings struct {
	Hold       time.Duration // highlight held on during a cue
	Gap        time.Duration // pause after release, before the next cue
	InputDelay time.Duration // pause between the last cue and accepting input
	Settle     time.Duration // pause between a completed round and the success cue
}

// DefaultTimings are used when Options.Timings is left zero.
var DefaultTimings = Timings{
	Hold:       500 * time.Millisecond,
	Gap:        500 * time.Millisecond,
	InputDelay: time.Second,
	Settle:     1100 * time.Millisecond,
}

type Options struct {
	Name      string // used in log lines only
	Symbols   []Symbol
	Timings   Timings
	Rand      *rand.Rand
	Presenter Presenter
	Listener  Listener
	Clock     Clock
}

// Outcome classifies the effect of one activation.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeProgress
	OutcomeRoundComplete
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeRoundComplete:
		return "round_complete"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "ignored"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{OutcomeIgnored, OutcomeProgress, OutcomeRoundComplete, OutcomeMismatch} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Snapshot is a read-only copy of the game state.
type Snapshot struct {
	Phase    state.Phase `json:"phase"`
	Score    int         `json:"score"`
	Round    int         `json:"round"`
	Input    []Symbol    `json:"input"`
	GameOver bool        `json:"game_over"`
	Sequence Sequence    `json:"-"`
}

// Controller owns one game: the sequence, the player's input, the score and the phase.
// Every mutation happens under mu. Deferred steps carry the session token they were
// started with and do nothing once a newer session has replaced it.
type Controller struct {
	mu        sync.Mutex
	name      string
	timings   Timings
	gen       *Generator
	presenter Presenter
	listener  Listener
	clock     Clock
	machine   state.StateMachine

	sequence Sequence
	input    []Symbol
	score    int

	// lit maps each highlighted symbol to the lease that turned it on.
	// Only the holder of the current lease may turn it off.
	lit    map[Symbol]uint64
	leases uint64

	token  uint64
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewController(opts Options) (*Controller, error) {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	gen, err := NewGenerator(symbols, opts.Rand)
	if err != nil {
		return nil, fmt.Errorf("new generator: %w", err)
	}

	timings := opts.Timings
	if timings == (Timings{}) {
		timings = DefaultTimings
	}

	c := &Controller{
		name:      opts.Name,
		timings:   timings,
		gen:       gen,
		presenter: opts.Presenter,
		listener:  opts.Listener,
		clock:     opts.Clock,
		machine:   state.NewGameMachine(),
		lit:       make(map[Symbol]uint64),
		ctx:       context.Background(),
	}
	if c.presenter == nil {
		c.presenter = nopPresenter{}
	}
	if c.listener == nil {
		c.listener = ListenerFunc(func(Snapshot) {})
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	return c, nil
}

// Symbols returns the alphabet this game draws from.
func (c *Controller) Symbols() []Symbol {
	return c.gen.Symbols()
}

// Start begins a fresh game from any phase. Pending steps of the previous game are
// invalidated before the new round is generated.
func (c *Controller) Start() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Snapshot{}, ErrClosed
	}

	token := c.renewLocked()
	c.score = 0
	c.input = nil
	c.sequence = c.gen.Extend(nil)
	logger.Log.Debugf("game %s: started, session %d", c.name, token)

	c.enterPresentingLocked(token)
	return c.snapshotLocked(), nil
}

// Activate feeds one player activation. Outside AwaitingInput it is dropped.
func (c *Controller) Activate(sym Symbol) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.gen.Contains(sym) {
		return OutcomeIgnored, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
	}
	if c.closed || c.machine.Current() != state.AwaitingInput {
		logger.Log.Debugf("game %s: ignoring %s during %s", c.name, sym, c.machine.Current())
		return OutcomeIgnored, nil
	}

	c.input = append(c.input, sym)
	c.feedbackLocked(sym)

	idx := len(c.input) - 1
	if c.sequence[idx] != sym {
		c.play(c.ctx, CueError)
		c.transitionLocked(state.GameOver)
		logger.Log.Infof("game %s: over at round %d, score %d", c.name, len(c.sequence), c.score)
		c.notifyLocked()
		return OutcomeMismatch, nil
	}

	if len(c.input) < len(c.sequence) {
		c.notifyLocked()
		return OutcomeProgress, nil
	}

	c.transitionLocked(state.RoundSuccess)
	c.notifyLocked()

	c.wg.Add(1)
	go c.advance(c.ctx, c.token)
	return OutcomeRoundComplete, nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels the running session and waits for every pending step to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.token++
	c.releaseAllLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// renewLocked cancels the previous session, turns off whatever it left lit and
// issues a new token.
func (c *Controller) renewLocked() uint64 {
	if c.cancel != nil {
		c.cancel()
	}
	c.releaseAllLocked()
	c.token++
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c.token
}

func (c *Controller) liveLocked(token uint64) bool {
	return !c.closed && token == c.token
}

func (c *Controller) enterPresentingLocked(token uint64) {
	c.transitionLocked(state.Presenting)
	c.notifyLocked()

	c.wg.Add(1)
	go c.present(c.ctx, token, c.sequence.Clone())
}

// present plays seq one cue at a time, then opens the player's turn.
func (c *Controller) present(ctx context.Context, token uint64, seq Sequence) {
	defer c.wg.Done()

	for _, sym := range seq {
		if err := c.presentCue(ctx, token, sym); err != nil {
			return
		}
	}
	if err := c.clock.Sleep(ctx, c.timings.InputDelay); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(token) || c.machine.Current() != state.Presenting {
		return
	}
	c.transitionLocked(state.AwaitingInput)
	c.notifyLocked()
}

// presentCue returns once the cue's full presentation, gap included, has elapsed.
func (c *Controller) presentCue(ctx context.Context, token uint64, sym Symbol) error {
	c.mu.Lock()
	if !c.liveLocked(token) {
		c.mu.Unlock()
		return context.Canceled
	}
	c.play(ctx, CueFor(sym))
	lease, lit := c.lightLocked(ctx, sym)
	c.mu.Unlock()

	err := c.clock.Sleep(ctx, c.timings.Hold)
	if lit {
		c.release(sym, lease)
	}
	if err != nil {
		return err
	}
	return c.clock.Sleep(ctx, c.timings.Gap)
}

// feedbackLocked echoes a player activation without blocking the caller.
func (c *Controller) feedbackLocked(sym Symbol) {
	ctx := c.ctx
	c.play(ctx, CueFor(sym))
	lease, lit := c.lightLocked(ctx, sym)
	if !lit {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.clock.Sleep(ctx, c.timings.Hold)
		c.release(sym, lease)
	}()
}

// lightLocked turns sym on and returns the lease that owns the highlight.
func (c *Controller) lightLocked(ctx context.Context, sym Symbol) (uint64, bool) {
	if !c.highlight(ctx, sym, true) {
		return 0, false
	}
	c.leases++
	c.lit[sym] = c.leases
	return c.leases, true
}

// release turns sym off unless a later lease has taken it over or it was already
// released by a restart.
func (c *Controller) release(sym Symbol, lease uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.lit[sym]; !ok || owner != lease {
		return
	}
	delete(c.lit, sym)
	c.highlight(context.Background(), sym, false)
}

func (c *Controller) releaseAllLocked() {
	for sym := range c.lit {
		delete(c.lit, sym)
		c.highlight(context.Background(), sym, false)
	}
}

// advance waits out the settle delay and then moves to the next round.
func (c *Controller) advance(ctx context.Context, token uint64) {
	defer c.wg.Done()

	if err := c.clock.Sleep(ctx, c.timings.Settle); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(token) || c.machine.Current() != state.RoundSuccess {
		return
	}

	c.play(ctx, CueSuccess)
	c.score = len(c.sequence)
	c.input = nil
	c.sequence = c.gen.Extend(c.sequence)
	logger.Log.Debugf("game %s: round %d cleared, next length %d", c.name, c.score, len(c.sequence))

	c.enterPresentingLocked(token)
}

func (c *Controller) transitionLocked(to state.Phase) {
	from := c.machine.Current()
	if err := c.machine.ChangeState(to); err != nil {
		logger.Log.Errorf("game %s: %v", c.name, err)
		return
	}
	logger.Log.Debugf("game %s: %s -> %s", c.name, from, to)
}

func (c *Controller) notifyLocked() {
	c.listener.StateChanged(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	phase := c.machine.Current()
	input := make([]Symbol, len(c.input))
	copy(input, c.input)
	return Snapshot{
		Phase:    phase,
		Score:    c.score,
		Round:    len(c.sequence),
		Input:    input,
		GameOver: phase == state.GameOver,
		Sequence: c.sequence.Clone(),
	}
}

func (c *Controller) play(ctx context.Context, cue Cue) {
	if err := c.presenter.Play(ctx, cue); err != nil {
		logger.Log.Warnf("game %s: play %s: %v", c.name, cue, err)
	}
}

// highlight reports whether the affordance was actually changed.
func (c *Controller) highlight(ctx context.Context, sym Symbol, active bool) bool {
	err := c.presenter.Highlight(ctx, sym, active)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNoAffordance):
		logger.Log.Debugf("game %s: no affordance for %s, skipping flash", c.name, sym)
	default:
		logger.Log.Warnf("game %s: highlight %s: %v", c.name, sym, err)
	}
	return false
}
