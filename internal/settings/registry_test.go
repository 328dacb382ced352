package settings_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogliux/collect/internal/adapter/filestore"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/settings"
)

func TestRegistry_Validate(t *testing.T) {
	require.NoError(t, settings.General.Validate(settings.KeyUsername, domain.StringValue("x")))

	err := settings.General.Validate("nope", domain.StringValue("x"))
	assert.ErrorIs(t, err, domain.ErrUnknownPreference)

	err = settings.Admin.Validate(settings.KeyEditSaved, domain.StringValue("true"))
	assert.ErrorIs(t, err, domain.ErrInvalidPreference)
}

func TestRegistry_NamesSortedAndSecrets(t *testing.T) {
	names := settings.Admin.Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, settings.KeyAdminPassword)

	assert.True(t, settings.General.IsSecret(settings.KeyPassword))
	assert.False(t, settings.General.IsSecret(settings.KeyUsername))
}

func TestSeedDefaults_KeepsExisting(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewMemory()
	require.NoError(t, store.Set(ctx, settings.KeyServerURL, domain.StringValue("https://mine.example.org")))

	require.NoError(t, settings.SeedDefaults(ctx, store, settings.General))

	url, err := settings.String(ctx, store, settings.General, settings.KeyServerURL)
	require.NoError(t, err)
	assert.Equal(t, "https://mine.example.org", url)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(settings.General.Names()))
}

func TestResetToDefaults(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewMemory()
	require.NoError(t, store.Set(ctx, settings.KeyAnalytics, domain.BoolValue(false)))
	require.NoError(t, store.Set(ctx, "stale_key", domain.BoolValue(false)))

	require.NoError(t, settings.ResetToDefaults(ctx, store, settings.General))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.General.Defaults(), all)
}

func TestBool_FallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewMemory()

	v, err := settings.Bool(ctx, store, settings.Admin, settings.KeyViewSent)
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, store.Set(ctx, settings.KeyViewSent, domain.BoolValue(false)))
	v, err = settings.Bool(ctx, store, settings.Admin, settings.KeyViewSent)
	require.NoError(t, err)
	assert.False(t, v)
}

type failingStore struct {
	domain.PreferenceStore
}

func (failingStore) Get(context.Context, string) (domain.Value, bool, error) {
	return domain.Value{}, false, errors.New("store offline")
}

func TestBool_StoreError(t *testing.T) {
	_, err := settings.Bool(context.Background(), failingStore{}, settings.Admin, settings.KeyViewSent)
	assert.ErrorContains(t, err, "store offline")
}

func TestRegistry_DecodeJSON(t *testing.T) {
	v, err := settings.General.DecodeJSON(settings.KeyAnalytics, json.RawMessage(`false`))
	require.NoError(t, err)
	assert.Equal(t, domain.BoolValue(false), v)

	v, err = settings.General.DecodeJSON(settings.KeyLastSync, json.RawMessage(`1700000000000`))
	require.NoError(t, err)
	assert.Equal(t, domain.LongValue(1700000000000), v)

	_, err = settings.General.DecodeJSON(settings.KeyAnalytics, json.RawMessage(`"yes"`))
	assert.ErrorIs(t, err, domain.ErrInvalidPreference)

	_, err = settings.General.DecodeJSON("nope", json.RawMessage(`1`))
	assert.ErrorIs(t, err, domain.ErrUnknownPreference)
}
