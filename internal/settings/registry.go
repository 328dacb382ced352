package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/hogliux/collect/internal/domain"
)

// General preference keys.
const (
	KeyServerURL          = "server_url"
	KeyUsername           = "username"
	KeyPassword           = "password"
	KeyProtocol           = "protocol"
	KeyFormListURL        = "formlist_url"
	KeySubmissionURL      = "submission_url"
	KeyFontSize           = "font_size"
	KeyAnalytics          = "analytics"
	KeyLogActivity        = "log_activity"
	KeyShowSplash         = "show_splash"
	KeySplashPath         = "splash_path"
	KeyDefaultCompleted   = "default_completed"
	KeyDeleteAfterSend    = "delete_send"
	KeyAutosendWifi       = "autosend_wifi"
	KeyAutosendNetwork    = "autosend_network"
	KeyConstraintBehavior = "constraint_behavior"
	KeyNavigation         = "navigation"
	KeyHighResolution     = "high_resolution"
	KeyMapBasemap         = "map_basemap"
	KeyLastSync           = "last_sync_millis"
)

// Admin preference keys.
const (
	KeyAdminPassword   = "admin_pw"
	KeyEditSaved       = "edit_saved"
	KeySendFinalized   = "send_finalized"
	KeyViewSent        = "view_sent"
	KeyGetBlank        = "get_blank"
	KeyDeleteSaved     = "delete_saved"
	KeyChangeServer    = "change_server"
	KeyChangeUsername  = "change_username"
	KeyChangePassword  = "change_password"
	KeyChangeProtocol  = "change_protocol"
	KeyChangeFontSize  = "change_font_size"
	KeyAccessSettings  = "access_settings"
	KeyMarkAsFinalized = "mark_as_finalized"
)

const (
	ProtocolODK          = "odk_default"
	ProtocolGoogleSheets = "google_sheets"
)

// Key declares one known preference.
type Key struct {
	Name    string
	Default domain.Value
	// Secret values are encrypted at rest and never returned by the API.
	Secret bool
}

func (k Key) Kind() domain.Kind { return k.Default.Kind }

// Registry is the closed set of keys one store accepts.
type Registry struct {
	scope domain.Scope
	keys  map[string]Key
}

func NewRegistry(scope domain.Scope, keys ...Key) *Registry {
	r := &Registry{scope: scope, keys: make(map[string]Key, len(keys))}
	for _, k := range keys {
		r.keys[k.Name] = k
	}
	return r
}

func (r *Registry) Scope() domain.Scope { return r.scope }

func (r *Registry) Lookup(name string) (Key, bool) {
	k, ok := r.keys[name]
	return k, ok
}

// Names returns the registered key names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.keys))
}

func (r *Registry) Defaults() map[string]domain.Value {
	out := make(map[string]domain.Value, len(r.keys))
	for name, k := range r.keys {
		out[name] = k.Default
	}
	return out
}

// Validate rejects keys outside the registry and values whose kind differs
// from the declared one.
func (r *Registry) Validate(name string, v domain.Value) error {
	k, ok := r.keys[name]
	if !ok {
		return fmt.Errorf("%w: %s preference %q", domain.ErrUnknownPreference, r.scope, name)
	}
	if v.Kind != k.Kind() {
		return fmt.Errorf("%w: %s preference %q must be %s, got %s", domain.ErrInvalidPreference, r.scope, name, k.Kind(), v.Kind)
	}
	return nil
}

func (r *Registry) IsSecret(name string) bool {
	return r.keys[name].Secret
}

var General = NewRegistry(domain.ScopeGeneral,
	Key{Name: KeyServerURL, Default: domain.StringValue("https://opendatakit.appspot.com")},
	Key{Name: KeyUsername, Default: domain.StringValue("")},
	Key{Name: KeyPassword, Default: domain.StringValue(""), Secret: true},
	Key{Name: KeyProtocol, Default: domain.StringValue(ProtocolODK)},
	Key{Name: KeyFormListURL, Default: domain.StringValue("/formList")},
	Key{Name: KeySubmissionURL, Default: domain.StringValue("/submission")},
	Key{Name: KeyFontSize, Default: domain.StringValue("21")},
	Key{Name: KeyAnalytics, Default: domain.BoolValue(true)},
	Key{Name: KeyLogActivity, Default: domain.BoolValue(true)},
	Key{Name: KeyShowSplash, Default: domain.BoolValue(false)},
	Key{Name: KeySplashPath, Default: domain.StringValue("")},
	Key{Name: KeyDefaultCompleted, Default: domain.BoolValue(true)},
	Key{Name: KeyDeleteAfterSend, Default: domain.BoolValue(false)},
	Key{Name: KeyAutosendWifi, Default: domain.BoolValue(false)},
	Key{Name: KeyAutosendNetwork, Default: domain.BoolValue(false)},
	Key{Name: KeyConstraintBehavior, Default: domain.StringValue("on_swipe")},
	Key{Name: KeyNavigation, Default: domain.StringValue("swipe")},
	Key{Name: KeyHighResolution, Default: domain.BoolValue(true)},
	Key{Name: KeyMapBasemap, Default: domain.StringValue("streets")},
	Key{Name: KeyLastSync, Default: domain.LongValue(0)},
)

var Admin = NewRegistry(domain.ScopeAdmin,
	Key{Name: KeyAdminPassword, Default: domain.StringValue(""), Secret: true},
	Key{Name: KeyEditSaved, Default: domain.BoolValue(true)},
	Key{Name: KeySendFinalized, Default: domain.BoolValue(true)},
	Key{Name: KeyViewSent, Default: domain.BoolValue(true)},
	Key{Name: KeyGetBlank, Default: domain.BoolValue(true)},
	Key{Name: KeyDeleteSaved, Default: domain.BoolValue(true)},
	Key{Name: KeyChangeServer, Default: domain.BoolValue(true)},
	Key{Name: KeyChangeUsername, Default: domain.BoolValue(true)},
	Key{Name: KeyChangePassword, Default: domain.BoolValue(true)},
	Key{Name: KeyChangeProtocol, Default: domain.BoolValue(true)},
	Key{Name: KeyChangeFontSize, Default: domain.BoolValue(true)},
	Key{Name: KeyAccessSettings, Default: domain.BoolValue(true)},
	Key{Name: KeyMarkAsFinalized, Default: domain.BoolValue(true)},
)

// SeedDefaults writes the default of every registered key the store lacks.
func SeedDefaults(ctx context.Context, store domain.PreferenceStore, reg *Registry) error {
	current, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("read %s preferences: %w", reg.scope, err)
	}
	for name, v := range reg.Defaults() {
		if _, ok := current[name]; ok {
			continue
		}
		if err := store.Set(ctx, name, v); err != nil {
			return fmt.Errorf("seed %s preference %q: %w", reg.scope, name, err)
		}
	}
	return nil
}

// ResetToDefaults clears the store and reseeds every default.
func ResetToDefaults(ctx context.Context, store domain.PreferenceStore, reg *Registry) error {
	if err := store.Replace(ctx, reg.Defaults()); err != nil {
		return fmt.Errorf("reset %s preferences: %w", reg.scope, err)
	}
	return nil
}

// Bool reads a boolean preference, falling back to the registered default
// when the key is missing or holds another kind.
func Bool(ctx context.Context, store domain.PreferenceStore, reg *Registry, name string) (bool, error) {
	v, ok, err := store.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("read %s preference %q: %w", reg.scope, name, err)
	}
	if !ok || v.Kind != domain.KindBool {
		return reg.keys[name].Default.Bool, nil
	}
	return v.Bool, nil
}

// String is Bool for string preferences.
func String(ctx context.Context, store domain.PreferenceStore, reg *Registry, name string) (string, error) {
	v, ok, err := store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("read %s preference %q: %w", reg.scope, name, err)
	}
	if !ok || v.Kind != domain.KindString {
		return reg.keys[name].Default.String, nil
	}
	return v.String, nil
}

// DecodeJSON parses raw as the declared kind of name.
func (r *Registry) DecodeJSON(name string, raw json.RawMessage) (domain.Value, error) {
	k, ok := r.keys[name]
	if !ok {
		return domain.Value{}, fmt.Errorf("%w: %s preference %q", domain.ErrUnknownPreference, r.scope, name)
	}
	v, err := decodeValue(k.Kind(), raw)
	if err != nil {
		return domain.Value{}, fmt.Errorf("%s preference %q: %w", r.scope, name, err)
	}
	return v, nil
}
