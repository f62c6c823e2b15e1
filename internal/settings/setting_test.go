package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novasite/internal/settings"
	"novasite/internal/testsupport"
)

func TestSetupDefaultSettings(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, settings.SetupDefaultSettings(db))

	sender, err := settings.GetSetting(db, settings.KeyNewsletterSender)
	require.NoError(t, err)
	assert.Equal(t, "news@novasite.local", sender)

	// Re-seeding must not clobber edited values
	require.NoError(t, settings.UpdateSetting(db, settings.KeyNewsletterSender, "updates@example.com"))
	require.NoError(t, settings.SetupDefaultSettings(db))

	sender, err = settings.GetSetting(db, settings.KeyNewsletterSender)
	require.NoError(t, err)
	assert.Equal(t, "updates@example.com", sender)
}

func TestGetSettingOr(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, settings.SetupDefaultSettings(db))

	assert.Equal(t, "fallback", settings.GetSettingOr(db, "does_not_exist", "fallback"))
	assert.Equal(t, "fallback", settings.GetSettingOr(db, settings.KeyMaintenanceBanner, "fallback"))

	require.NoError(t, settings.UpdateSetting(db, settings.KeyMaintenanceBanner, "Maintenance at 22:00 UTC"))
	assert.Equal(t, "Maintenance at 22:00 UTC", settings.GetSettingOr(db, settings.KeyMaintenanceBanner, "fallback"))
}

func TestUpdateSettingCreatesMissingKey(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, settings.SetupDefaultSettings(db))

	require.NoError(t, settings.UpdateSetting(db, "custom_key", "custom_value"))

	value, err := settings.GetSetting(db, "custom_key")
	require.NoError(t, err)
	assert.Equal(t, "custom_value", value)
}

func TestIsIPExcluded(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, settings.SetupDefaultSettings(db))

	excluded, err := settings.IsIPExcluded("203.0.113.50")
	require.NoError(t, err)
	assert.False(t, excluded)

	require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, "203.0.113.50, 198.51.100.7"))

	excluded, err = settings.IsIPExcluded("203.0.113.50")
	require.NoError(t, err)
	assert.True(t, excluded)

	// Whitespace around entries is tolerated
	excluded, err = settings.IsIPExcluded("198.51.100.7")
	require.NoError(t, err)
	assert.True(t, excluded)

	excluded, err = settings.IsIPExcluded("192.0.2.1")
	require.NoError(t, err)
	assert.False(t, excluded)
}
