package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPrefs(t *testing.T) (*Prefs, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV()
	return NewPrefs(kv, zerolog.Nop()), kv
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := kv.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, _ := kv.Get(ctx, "k"); v != "v" {
		t.Fatalf("got %q, want v", v)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatal("deleted key should be missing")
	}
}

func TestInterfaceModeDefaultsToSimple(t *testing.T) {
	p, kv := newTestPrefs(t)
	ctx := context.Background()

	if got := p.InterfaceMode(ctx); got != ModeSimple {
		t.Fatalf("default mode = %q, want simple", got)
	}

	kv.Set(ctx, KeyInterfaceMode, "wizard")
	if got := p.InterfaceMode(ctx); got != ModeSimple {
		t.Fatalf("unknown mode should read as simple, got %q", got)
	}

	if err := p.SetInterfaceMode(ctx, ModePower); err != nil {
		t.Fatal(err)
	}
	if got := p.InterfaceMode(ctx); got != ModePower {
		t.Fatalf("mode = %q, want power", got)
	}

	if err := p.SetInterfaceMode(ctx, "wizard"); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestSocialSettingsRoundTrip(t *testing.T) {
	p, kv := newTestPrefs(t)
	ctx := context.Background()

	if got := p.SocialSettings(ctx); got != DefaultSocialSettings() {
		t.Fatalf("expected defaults, got %+v", got)
	}

	want := SocialSettings{PublicProfile: true, ShowStreaks: true, DisplayName: "dana"}
	if err := p.SetSocialSettings(ctx, want); err != nil {
		t.Fatal(err)
	}
	if got := p.SocialSettings(ctx); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	raw, _ := kv.Get(ctx, KeySocialSettings)
	if raw == "" || raw[0] != '{' {
		t.Fatalf("social settings should be stored as a JSON object, got %q", raw)
	}
}

func TestSocialSettingsMalformedFallsBack(t *testing.T) {
	p, kv := newTestPrefs(t)
	ctx := context.Background()
	kv.Set(ctx, KeySocialSettings, "{not json")

	if got := p.SocialSettings(ctx); got != DefaultSocialSettings() {
		t.Fatalf("malformed settings should fall back to defaults, got %+v", got)
	}
}

func TestDailyPromptDedupe(t *testing.T) {
	p, kv := newTestPrefs(t)
	ctx := context.Background()
	morning := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	if !p.ShouldPromptToday(ctx, morning) {
		t.Fatal("should prompt when never prompted")
	}
	if err := p.MarkPrompted(ctx, morning); err != nil {
		t.Fatal(err)
	}
	if v, _ := kv.Get(ctx, KeyLastDailyPrompt); v != "2025-01-15" {
		t.Fatalf("stored date = %q, want 2025-01-15", v)
	}
	if p.ShouldPromptToday(ctx, morning.Add(10*time.Hour)) {
		t.Fatal("should not prompt twice on the same day")
	}
	if !p.ShouldPromptToday(ctx, morning.Add(24*time.Hour)) {
		t.Fatal("should prompt again the next day")
	}
}
