// Package settings persists per-device user preferences in the local
// store. Settings are never sent to the remote.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

// Preference keys.
const (
	KeyThemeMode           = "theme_mode"
	KeyAccentColor         = "accent_color"
	KeyFontSize            = "font_size"
	KeyNotificationEnabled = "notification_enabled"
	KeyNotificationTime    = "notification_time"
)

var keys = []string{
	KeyThemeMode,
	KeyAccentColor,
	KeyFontSize,
	KeyNotificationEnabled,
	KeyNotificationTime,
}

// Store is the preference storage the repository needs.
// Implemented by [state.Store].
type Store interface {
	live.Source
	GetPreferences(ctx context.Context, keys ...string) (map[string]string, error)
	SetPreferences(ctx context.Context, values map[string]string) error
}

// Repository reads and writes [model.Settings].
type Repository struct {
	store    Store
	log      *slog.Logger
	validate *validator.Validate
}

// NewRepository creates a Repository backed by store.
func NewRepository(store Store, logger *slog.Logger) *Repository {
	return &Repository{
		store:    store,
		log:      logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Get returns the stored settings. Missing or unrecognized values fall back
// to their defaults field by field.
func (r *Repository) Get(ctx context.Context) (model.Settings, error) {
	values, err := r.store.GetPreferences(ctx, keys...)
	if err != nil {
		return model.Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return r.decode(values), nil
}

// Watch emits the current settings and again after every preference write.
func (r *Repository) Watch(ctx context.Context) *live.Subscription[model.Settings] {
	return live.Watch(ctx, r.store, r.Get, state.TablePreferences)
}

// Update validates s and stores every field in one write.
func (r *Repository) Update(ctx context.Context, s model.Settings) error {
	if err := r.validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	values := map[string]string{
		KeyThemeMode:           string(s.ThemeMode),
		KeyAccentColor:         string(s.AccentColor),
		KeyFontSize:            string(s.FontSize),
		KeyNotificationEnabled: strconv.FormatBool(s.NotificationEnabled),
		KeyNotificationTime:    s.NotificationTime,
	}
	if err := r.store.SetPreferences(ctx, values); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Set parses a single key/value pair, applies it on top of the stored
// settings and saves the result.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	s, err := r.Get(ctx)
	if err != nil {
		return err
	}
	switch key {
	case KeyThemeMode:
		s.ThemeMode = model.ThemeMode(value)
	case KeyAccentColor:
		s.AccentColor = model.AccentColor(value)
	case KeyFontSize:
		s.FontSize = model.FontSize(value)
	case KeyNotificationEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		s.NotificationEnabled = b
	case KeyNotificationTime:
		s.NotificationTime = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return r.Update(ctx, s)
}

// Sync is a no-op. Settings stay on the device.
func (r *Repository) Sync(context.Context) error {
	r.log.Debug("settings sync skipped, settings are local only")
	return nil
}

// Keys lists the preference keys in display order.
func Keys() []string {
	return append([]string(nil), keys...)
}

func (r *Repository) decode(values map[string]string) model.Settings {
	s := model.DefaultSettings()

	if v, ok := values[KeyThemeMode]; ok && r.valid(v, "oneof=LIGHT DARK SYSTEM") {
		s.ThemeMode = model.ThemeMode(v)
	}
	if v, ok := values[KeyAccentColor]; ok && r.valid(v, "oneof=PURPLE BLUE TEAL ORANGE PINK") {
		s.AccentColor = model.AccentColor(v)
	}
	if v, ok := values[KeyFontSize]; ok && r.valid(v, "oneof=SMALL MEDIUM LARGE EXTRA_LARGE") {
		s.FontSize = model.FontSize(v)
	}
	if v, ok := values[KeyNotificationEnabled]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.NotificationEnabled = b
		}
	}
	if v, ok := values[KeyNotificationTime]; ok && r.valid(v, "datetime=15:04") {
		s.NotificationTime = v
	}
	return s
}

func (r *Repository) valid(v, tag string) bool {
	return r.validate.Var(v, tag) == nil
}
