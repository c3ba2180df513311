package main

import (
	"testing"

	"github.com/wfunc/simon/state"
)

func TestClient_Resolve(t *testing.T) {
	c := &client{symbols: []string{"green", "red", "yellow", "blue"}}

	cases := map[string]string{
		"red":  "red",
		"2":    "red",
		"g":    "green",
		"bl":   "blue",
		"4":    "blue",
		"y":    "yellow",
		"":     "",
		"9":    "",
		"pink": "",
	}
	for input, want := range cases {
		got, ok := c.resolve(input)
		if want == "" {
			if ok && input != "" {
				t.Errorf("resolve(%q) = %q, want no match", input, got)
			}
			continue
		}
		if !ok || got != want {
			t.Errorf("resolve(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
}

func TestClient_ControlsDisabledOutsideTurn(t *testing.T) {
	// conn is nil: any attempt to send would panic.
	c := &client{symbols: []string{"green", "red"}, phase: state.Presenting}
	if err := c.handleLine("red"); err != nil {
		t.Fatal(err)
	}

	c = &client{symbols: []string{"green", "red"}, phase: state.AwaitingInput, spectator: true}
	if err := c.handleLine("red"); err != nil {
		t.Fatal(err)
	}
}
