package game

import (
	"context"
	"errors"
	"time"
)

// ErrNoAffordance is returned by Presenter.Highlight when the symbol has nothing to flash.
// The controller skips the flash but keeps the cue's timing.
var ErrNoAffordance = errors.New("no affordance for symbol")

// Presenter renders cues for a single game. Calls may happen while the controller
// holds its lock, so implementations must return promptly and must not call back
// into the Controller.
type Presenter interface {
	// Play starts the audio for cue.
	Play(ctx context.Context, cue Cue) error
	// Highlight sets the visual active state of the symbol's affordance.
	Highlight(ctx context.Context, sym Symbol, active bool) error
}

// Listener observes every state change. The same locking rules as Presenter apply.
type Listener interface {
	StateChanged(snap Snapshot)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Snapshot)

func (f ListenerFunc) StateChanged(snap Snapshot) { f(snap) }

// Clock suspends the presentation pipeline.
type Clock interface {
	// Sleep returns nil after d, or ctx.Err() if ctx is done first.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SystemClock sleeps on the runtime's timers.
var SystemClock Clock = systemClock{}

type nopPresenter struct{}

func (nopPresenter) Play(context.Context, Cue) error               { return nil }
func (nopPresenter) Highlight(context.Context, Symbol, bool) error { return ErrNoAffordance }
