package game

import (
	"errors"
	"fmt"
	"strings"
)

// Symbol is one selectable color/tone of the game.
type Symbol string

// DefaultSymbols is the classic four-button board.
var DefaultSymbols = []Symbol{"green", "red", "yellow", "blue"}

// Cue is something the presenter can play: a symbol's tone or one of the
// reserved success/error markers.
type Cue string

const (
	CueSuccess Cue = "success"
	CueError   Cue = "error"
)

// CueFor returns the cue that presents sym.
func CueFor(sym Symbol) Cue { return Cue(sym) }

var (
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrAlphabetTooSmall = errors.New("alphabet needs at least two symbols")
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
)

// ParseSymbols normalizes configured names into an alphabet.
func ParseSymbols(names []string) ([]Symbol, error) {
	symbols := make([]Symbol, 0, len(names))
	seen := make(map[Symbol]struct{}, len(names))
	for _, name := range names {
		sym := Symbol(strings.ToLower(strings.TrimSpace(name)))
		if sym == "" || Cue(sym) == CueSuccess || Cue(sym) == CueError {
			return nil, fmt.Errorf("invalid symbol name %q", name)
		}
		if _, dup := seen[sym]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym)
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	if len(symbols) < 2 {
		return nil, ErrAlphabetTooSmall
	}
	return symbols, nil
}
