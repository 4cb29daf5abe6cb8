package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Persisted local state keys.
const (
	KeyActiveTimers    = "stackvault_active_timers"
	KeyInterfaceMode   = "stackvault_interface_mode"
	KeySocialSettings  = "stackvault_social_settings"
	KeyLastDailyPrompt = "stackvault_last_daily_prompt"
)

// KV is the durable key/value port used for client-side state such as
// open timers and display preferences. Get returns ErrNotFound for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
