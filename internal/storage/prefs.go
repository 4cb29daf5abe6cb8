package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// InterfaceMode controls how much detail the dashboard shows.
type InterfaceMode string

const (
	ModeSimple InterfaceMode = "simple"
	ModePower  InterfaceMode = "power"
)

// SocialSettings controls what the user shares publicly.
type SocialSettings struct {
	PublicProfile bool   `json:"publicProfile"`
	ShowStreaks   bool   `json:"showStreaks"`
	ShowSpend     bool   `json:"showSpend"`
	DisplayName   string `json:"displayName"`
}

// DefaultSocialSettings shares nothing.
func DefaultSocialSettings() SocialSettings {
	return SocialSettings{}
}

const promptDateLayout = "2006-01-02"

// Prefs is a typed view over the persisted preference keys.
type Prefs struct {
	kv     KV
	logger zerolog.Logger
}

// NewPrefs wraps kv.
func NewPrefs(kv KV, logger zerolog.Logger) *Prefs {
	return &Prefs{
		kv:     kv,
		logger: logger.With().Str("component", "prefs").Logger(),
	}
}

// InterfaceMode returns the stored mode. Missing or unknown values read
// as simple.
func (p *Prefs) InterfaceMode(ctx context.Context) InterfaceMode {
	v, err := p.kv.Get(ctx, KeyInterfaceMode)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn().Err(err).Msg("Failed to read interface mode")
		}
		return ModeSimple
	}
	if InterfaceMode(v) == ModePower {
		return ModePower
	}
	return ModeSimple
}

// SetInterfaceMode stores mode.
func (p *Prefs) SetInterfaceMode(ctx context.Context, mode InterfaceMode) error {
	if mode != ModeSimple && mode != ModePower {
		return fmt.Errorf("invalid interface mode %q", mode)
	}
	return p.kv.Set(ctx, KeyInterfaceMode, string(mode))
}

// SocialSettings returns the stored settings, or defaults when missing or
// unreadable.
func (p *Prefs) SocialSettings(ctx context.Context) SocialSettings {
	v, err := p.kv.Get(ctx, KeySocialSettings)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn().Err(err).Msg("Failed to read social settings")
		}
		return DefaultSocialSettings()
	}
	var s SocialSettings
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		p.logger.Warn().Err(err).Msg("Discarding malformed social settings")
		return DefaultSocialSettings()
	}
	return s
}

// SetSocialSettings stores s as JSON.
func (p *Prefs) SetSocialSettings(ctx context.Context, s SocialSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal social settings: %w", err)
	}
	return p.kv.Set(ctx, KeySocialSettings, string(data))
}

// ShouldPromptToday reports whether the daily usage prompt has not yet
// been shown on now's calendar day.
func (p *Prefs) ShouldPromptToday(ctx context.Context, now time.Time) bool {
	v, err := p.kv.Get(ctx, KeyLastDailyPrompt)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn().Err(err).Msg("Failed to read last daily prompt")
		}
		return true
	}
	return v != now.Format(promptDateLayout)
}

// MarkPrompted records that the daily prompt was shown on now's day.
func (p *Prefs) MarkPrompted(ctx context.Context, now time.Time) error {
	return p.kv.Set(ctx, KeyLastDailyPrompt, now.Format(promptDateLayout))
}
