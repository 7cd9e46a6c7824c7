package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mgrall/skald/internal/bus"
)

func TestStore_GetSet(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.Default())
	s := NewStore(&Config{Version: "1"}, "", b)

	if _, ok := s.Get("prefix.g1"); ok {
		t.Error("unexpected value before Set")
	}

	s.Set("prefix.g1", "?")
	if v, ok := s.GetString("prefix.g1"); !ok || v != "?" {
		t.Errorf("GetString = %q, %v", v, ok)
	}

	s.Delete("prefix.g1")
	if _, ok := s.Get("prefix.g1"); ok {
		t.Error("value survived Delete")
	}
}

func TestStore_SavePublishesConfigLoaded(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.Default())
	path := writeConfig(t, "version: \"1\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	var published int
	b.Subscribe(bus.EventConfigLoaded, func(...any) { published++ })

	s := NewStore(cfg, path, b)
	s.Set("prefix.default", "~")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if published != 1 {
		t.Errorf("config-loaded published %d times, want 1", published)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "prefix.default") {
		t.Errorf("saved file missing setting:\n%s", raw)
	}

	// Reload of the written file round-trips the setting.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Settings["prefix.default"] != "~" {
		t.Errorf("round-tripped prefix.default = %v", again.Settings["prefix.default"])
	}
}

func TestStore_ReplacePublishes(t *testing.T) {
	t.Parallel()

	b := bus.New(slog.Default())
	s := NewStore(&Config{Version: "1"}, "", b)

	var got *Config
	b.Subscribe(bus.EventConfigLoaded, func(payload ...any) {
		if len(payload) == 1 {
			got, _ = payload[0].(*Config)
		}
	})

	next := &Config{Version: "1", Host: HostConfig{Masters: []string{"u1"}}}
	s.Replace(next)

	if got != next {
		t.Error("subscriber did not receive the replaced snapshot")
	}
	if s.Snapshot() != next {
		t.Error("Snapshot did not return the replaced config")
	}
}
