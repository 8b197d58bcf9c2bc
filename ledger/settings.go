package ledger

import (
	"context"
	"time"
)

// Default settings used when the shop has never saved any.
const (
	DefaultPointRate       int64 = 1
	DefaultSilverThreshold int64 = 100
	DefaultGoldThreshold   int64 = 1000
)

// Settings is the shop-wide singleton. Only PointRate and the two
// thresholds matter to the engine; the rest is display metadata.
type Settings struct {
	ShopName        string
	ShopAddress     string
	ShopPhone       string
	PointRate       int64 // currency units per point
	SilverThreshold int64
	GoldThreshold   int64
	PrintReceipt    bool
	UpdatedAt       time.Time
}

// DefaultSettings returns {PointRate:1, Silver:100, Gold:1000}.
func DefaultSettings() Settings {
	return Settings{
		PointRate:       DefaultPointRate,
		SilverThreshold: DefaultSilverThreshold,
		GoldThreshold:   DefaultGoldThreshold,
	}
}

// Validate checks the rules enforced when settings are written.
func (s Settings) Validate() error {
	if s.PointRate < 1 {
		return &ValidationError{Field: "point_rate", Reason: "must be at least 1"}
	}
	if s.SilverThreshold < 0 {
		return &ValidationError{Field: "tier_silver_threshold", Reason: "must not be negative"}
	}
	if s.GoldThreshold <= s.SilverThreshold {
		return &ValidationError{Field: "tier_gold_threshold", Reason: "must be greater than the silver threshold"}
	}
	return nil
}

// SettingsProvider supplies the current settings. Implementations return
// DefaultSettings when nothing has been stored.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// SettingsStore is a SettingsProvider that can also persist settings.
type SettingsStore interface {
	SettingsProvider
	SaveSettings(ctx context.Context, s Settings) error
}
