package game

import (
	"math/rand/v2"
)

// Sequence is the ordered list the machine presents. Adjacent symbols never repeat.
type Sequence []Symbol

// Last returns the final symbol, if any.
func (s Sequence) Last() (Symbol, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

// Clone returns a copy that does not alias s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Generator draws symbols with rejection sampling so that no symbol follows itself.
// It is not safe for concurrent use.
type Generator struct {
	symbols []Symbol
	rng     *rand.Rand
}

// NewGenerator requires at least two distinct symbols so that rejection always terminates.
func NewGenerator(symbols []Symbol, rng *rand.Rand) (*Generator, error) {
	if len(symbols) < 2 {
		return nil, ErrAlphabetTooSmall
	}
	seen := make(map[Symbol]struct{}, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			return nil, ErrDuplicateSymbol
		}
		seen[s] = struct{}{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{symbols: append([]Symbol(nil), symbols...), rng: rng}, nil
}

// Next draws a symbol different from prev. With hasPrev false any symbol may come out.
func (g *Generator) Next(prev Symbol, hasPrev bool) Symbol {
	for {
		sym := g.symbols[g.rng.IntN(len(g.symbols))]
		if !hasPrev || sym != prev {
			return sym
		}
	}
}

// Extend returns a new sequence: seq followed by one fresh symbol.
func (g *Generator) Extend(seq Sequence) Sequence {
	prev, ok := seq.Last()
	out := make(Sequence, len(seq), len(seq)+1)
	copy(out, seq)
	return append(out, g.Next(prev, ok))
}

// Symbols returns the alphabet in configured order.
func (g *Generator) Symbols() []Symbol {
	return append([]Symbol(nil), g.symbols...)
}

// Contains reports whether sym belongs to the alphabet.
func (g *Generator) Contains(sym Symbol) bool {
	for _, s := range g.symbols {
		if s == sym {
			return true
		}
	}
	return false
}
