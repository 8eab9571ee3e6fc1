package model

import "testing"

func TestFontSizeScale(t *testing.T) {
	tests := map[FontSize]float64{
		FontSmall:      0.85,
		FontMedium:     1.0,
		FontLarge:      1.15,
		FontExtraLarge: 1.3,
		FontSize("x"):  1.0,
	}
	for size, want := range tests {
		if got := size.Scale(); got != want {
			t.Errorf("%s.Scale() = %v, want %v", size, got, want)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.ThemeMode != ThemeSystem || s.AccentColor != AccentPurple || s.FontSize != FontMedium {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if !s.NotificationEnabled || s.NotificationTime != "08:00" {
		t.Errorf("unexpected notification defaults: %+v", s)
	}
}
