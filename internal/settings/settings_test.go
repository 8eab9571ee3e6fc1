package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

func newTestRepository(t *testing.T) (*Repository, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRepository(store, slog.Default()), store
}

func TestGet_DefaultsWhenEmpty(t *testing.T) {
	r, _ := newTestRepository(t)

	got, err := r.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(model.DefaultSettings(), got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestUpdate_RoundTrip(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()
	want := model.Settings{
		ThemeMode:           model.ThemeDark,
		AccentColor:         model.AccentTeal,
		FontSize:            model.FontExtraLarge,
		NotificationEnabled: false,
		NotificationTime:    "21:45",
	}

	if err := r.Update(ctx, want); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestUpdate_RejectsInvalid(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()

	bad := model.DefaultSettings()
	bad.AccentColor = "GREEN"
	if err := r.Update(ctx, bad); err == nil {
		t.Error("expected error for unknown accent color")
	}

	bad = model.DefaultSettings()
	bad.NotificationTime = "25:00"
	if err := r.Update(ctx, bad); err == nil {
		t.Error("expected error for out-of-range time")
	}

	got, _ := r.Get(ctx)
	if diff := cmp.Diff(model.DefaultSettings(), got); diff != "" {
		t.Errorf("rejected update was stored (-want +got):\n%s", diff)
	}
}

func TestGet_UnknownStoredValuesFallBack(t *testing.T) {
	r, store := newTestRepository(t)
	ctx := context.Background()

	err := store.SetPreferences(ctx, map[string]string{
		KeyThemeMode:           "NEON",
		KeyAccentColor:         "BLUE",
		KeyFontSize:            "HUGE",
		KeyNotificationEnabled: "maybe",
		KeyNotificationTime:    "noon",
	})
	if err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}

	got, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := model.DefaultSettings()
	want.AccentColor = model.AccentBlue
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestSet_SingleKey(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()

	if err := r.Set(ctx, KeyFontSize, "LARGE"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Set(ctx, KeyNotificationEnabled, "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := r.Get(ctx)
	if got.FontSize != model.FontLarge || got.NotificationEnabled {
		t.Errorf("settings = %+v", got)
	}
	if got.FontSize.Scale() != 1.15 {
		t.Errorf("Scale = %v, want 1.15", got.FontSize.Scale())
	}
}

func TestSet_Errors(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()

	if err := r.Set(ctx, "volume", "11"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := r.Set(ctx, KeyNotificationEnabled, "sometimes"); err == nil {
		t.Error("expected error for unparsable bool")
	}
	if err := r.Set(ctx, KeyThemeMode, "dark"); err == nil {
		t.Error("expected error for lower-case theme")
	}
}

func TestSync_IsNoop(t *testing.T) {
	r, _ := newTestRepository(t)
	if err := r.Sync(context.Background()); err != nil {
		t.Errorf("Sync: %v", err)
	}
}

func TestWatch_EmitsOnUpdate(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()

	sub := r.Watch(ctx)
	defer sub.Cancel()

	wait := func(pred func(model.Settings) bool) model.Settings {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case s, ok := <-sub.C():
				if !ok {
					t.Fatalf("subscription closed: %v", sub.Err())
				}
				if pred(s) {
					return s
				}
			case <-timeout:
				t.Fatal("timed out waiting for settings")
				return model.Settings{}
			}
		}
	}

	wait(func(s model.Settings) bool { return s.ThemeMode == model.ThemeSystem })
	if err := r.Set(ctx, KeyThemeMode, "LIGHT"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	wait(func(s model.Settings) bool { return s.ThemeMode == model.ThemeLight })
}
