package game

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestGenerator_NoAdjacentRepeats(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		gen, err := NewGenerator(DefaultSymbols, rand.New(rand.NewPCG(seed, seed+1)))
		if err != nil {
			t.Fatalf("NewGenerator failed: %v", err)
		}

		var seq Sequence
		for i := 0; i < 300; i++ {
			next := gen.Extend(seq)
			if len(next) != len(seq)+1 {
				t.Fatalf("seed %d: Extend should add exactly one symbol, got %d -> %d", seed, len(seq), len(next))
			}
			for j := range seq {
				if next[j] != seq[j] {
					t.Fatalf("seed %d: Extend changed prefix at %d", seed, j)
				}
			}
			seq = next
		}

		for i := 1; i < len(seq); i++ {
			if seq[i] == seq[i-1] {
				t.Fatalf("seed %d: adjacent repeat %s at %d", seed, seq[i], i)
			}
		}
	}
}

func TestGenerator_UsesWholeAlphabet(t *testing.T) {
	gen, _ := NewGenerator(DefaultSymbols, rand.New(rand.NewPCG(7, 7)))
	seen := make(map[Symbol]bool)
	var seq Sequence
	for i := 0; i < 200; i++ {
		seq = gen.Extend(seq)
		seen[seq[len(seq)-1]] = true
	}
	if len(seen) != len(DefaultSymbols) {
		t.Errorf("Expected all %d symbols to appear, saw %v", len(DefaultSymbols), seen)
	}
}

func TestGenerator_TwoSymbolsAlternate(t *testing.T) {
	gen, err := NewGenerator([]Symbol{"on", "off"}, rand.New(rand.NewPCG(3, 4)))
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	var seq Sequence
	for i := 0; i < 50; i++ {
		seq = gen.Extend(seq)
	}
	for i := 2; i < len(seq); i++ {
		if seq[i] != seq[i-2] {
			t.Fatalf("Two-symbol sequence must alternate, got %v", seq)
		}
	}
}

func TestGenerator_Extend_DoesNotAlias(t *testing.T) {
	gen, _ := NewGenerator(DefaultSymbols, rand.New(rand.NewPCG(1, 1)))
	base := make(Sequence, 1, 8)
	base[0] = "red"

	a := gen.Extend(base)
	b := gen.Extend(base)
	a[0] = "blue"
	if base[0] != "red" || b[0] != "red" {
		t.Error("Extend must return an independent slice")
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	if _, err := NewGenerator([]Symbol{"red"}, nil); !errors.Is(err, ErrAlphabetTooSmall) {
		t.Errorf("Expected ErrAlphabetTooSmall, got %v", err)
	}
	if _, err := NewGenerator([]Symbol{"red", "red"}, nil); !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("Expected ErrDuplicateSymbol, got %v", err)
	}
	if _, err := NewGenerator(DefaultSymbols, nil); err != nil {
		t.Errorf("A nil rng should be replaced, got %v", err)
	}
}

func TestParseSymbols(t *testing.T) {
	got, err := ParseSymbols([]string{" Green", "RED", "yellow"})
	if err != nil {
		t.Fatalf("ParseSymbols failed: %v", err)
	}
	want := []Symbol{"green", "red", "yellow"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}

	if _, err := ParseSymbols([]string{"red", "Red"}); !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("Expected ErrDuplicateSymbol, got %v", err)
	}
	if _, err := ParseSymbols([]string{"red"}); !errors.Is(err, ErrAlphabetTooSmall) {
		t.Errorf("Expected ErrAlphabetTooSmall, got %v", err)
	}
	if _, err := ParseSymbols([]string{"red", "success"}); err == nil {
		t.Error("Reserved cue names must not be symbols")
	}
}
