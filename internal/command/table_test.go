package command

import (
	"context"
	"errors"
	"testing"
)

func noopHandler(context.Context, *Invocation) error { return nil }

func TestTable_SetModuleAndResolve(t *testing.T) {
	t.Parallel()

	tab := NewTable()
	err := tab.SetModule("corecmd", []Descriptor{
		{Name: "ping", Aliases: []string{"p"}, RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
		{Name: "help", RunsOn: Surfaces{Chat: true, Control: true}, Handler: noopHandler},
	})
	if err != nil {
		t.Fatalf("SetModule: %v", err)
	}

	if _, ok := tab.Resolve("ping"); !ok {
		t.Error("ping not resolvable by name")
	}
	if d, ok := tab.Resolve("p"); !ok || d.Name != "ping" {
		t.Errorf("alias p resolved to %q, %v", d.Name, ok)
	}
	if _, ok := tab.Resolve("Ping"); ok {
		t.Error("resolution must be case-sensitive")
	}
	if _, ok := tab.Resolve("pong"); ok {
		t.Error("unknown token resolved")
	}
}

func TestTable_RejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	tab := NewTable()

	tests := []struct {
		name string
		desc Descriptor
		want error
	}{
		{"no name", Descriptor{Handler: noopHandler, RunsOn: Surfaces{Chat: true}}, ErrNoName},
		{"no handler", Descriptor{Name: "x", RunsOn: Surfaces{Chat: true}}, ErrNoHandler},
		{"no surface", Descriptor{Name: "x", Handler: noopHandler}, ErrNoSurface},
		{"whitespace name", Descriptor{Name: "a b", Handler: noopHandler, RunsOn: Surfaces{Chat: true}}, ErrBadName},
		{"bad alias", Descriptor{Name: "x", Aliases: []string{""}, Handler: noopHandler, RunsOn: Surfaces{Chat: true}}, ErrBadName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tab.SetModule("m", []Descriptor{tt.desc})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTable_ConflictAcrossModules(t *testing.T) {
	t.Parallel()

	tab := NewTable()
	if err := tab.SetModule("a", []Descriptor{
		{Name: "ping", RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}

	err := tab.SetModule("b", []Descriptor{
		{Name: "stats", Aliases: []string{"ping"}, RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	// The failed registration must not leave partial state.
	if _, ok := tab.Resolve("stats"); ok {
		t.Error("stats registered despite conflict")
	}
}

func TestTable_ReplaceWholesale(t *testing.T) {
	t.Parallel()

	tab := NewTable()
	if err := tab.SetModule("m", []Descriptor{
		{Name: "old", RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}
	if err := tab.SetModule("m", []Descriptor{
		{Name: "new", RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}

	if _, ok := tab.Resolve("old"); ok {
		t.Error("old descriptor survived wholesale replacement")
	}
	if _, ok := tab.Resolve("new"); !ok {
		t.Error("new descriptor missing after replacement")
	}
}

func TestTable_RemoveModule(t *testing.T) {
	t.Parallel()

	tab := NewTable()
	if err := tab.SetModule("m", []Descriptor{
		{Name: "ping", Aliases: []string{"p"}, RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}
	tab.RemoveModule("m")

	if _, ok := tab.Resolve("ping"); ok {
		t.Error("name survived RemoveModule")
	}
	if _, ok := tab.Resolve("p"); ok {
		t.Error("alias survived RemoveModule")
	}
	if got := len(tab.All()); got != 0 {
		t.Errorf("All() = %d descriptors, want 0", got)
	}
}
