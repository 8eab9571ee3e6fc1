package model

// ThemeMode selects light, dark, or system-driven appearance.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "LIGHT"
	ThemeDark   ThemeMode = "DARK"
	ThemeSystem ThemeMode = "SYSTEM"
)

// AccentColor is the UI accent.
type AccentColor string

const (
	AccentPurple AccentColor = "PURPLE"
	AccentBlue   AccentColor = "BLUE"
	AccentTeal   AccentColor = "TEAL"
	AccentOrange AccentColor = "ORANGE"
	AccentPink   AccentColor = "PINK"
)

// FontSize is a named text scale.
type FontSize string

const (
	FontSmall      FontSize = "SMALL"
	FontMedium     FontSize = "MEDIUM"
	FontLarge      FontSize = "LARGE"
	FontExtraLarge FontSize = "EXTRA_LARGE"
)

// Scale returns the multiplier applied to the base text size. Unknown sizes
// scale like [FontMedium].
func (f FontSize) Scale() float64 {
	switch f {
	case FontSmall:
		return 0.85
	case FontLarge:
		return 1.15
	case FontExtraLarge:
		return 1.3
	default:
		return 1.0
	}
}

// Settings holds per-device preferences. They are never synced remotely.
type Settings struct {
	ThemeMode           ThemeMode   `validate:"oneof=LIGHT DARK SYSTEM"`
	AccentColor         AccentColor `validate:"oneof=PURPLE BLUE TEAL ORANGE PINK"`
	FontSize            FontSize    `validate:"oneof=SMALL MEDIUM LARGE EXTRA_LARGE"`
	NotificationEnabled bool
	NotificationTime    string `validate:"datetime=15:04"` // 24-hour HH:MM
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		ThemeMode:           ThemeSystem,
		AccentColor:         AccentPurple,
		FontSize:            FontMedium,
		NotificationEnabled: true,
		NotificationTime:    "08:00",
	}
}
