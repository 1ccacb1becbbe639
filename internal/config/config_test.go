package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyPartNumber, "MU6Q3VC/A")
	v.Set(KeyLocationCode, "M5V 2H1")
	v.Set(KeyTelegramToken, "123:abc")
	v.Set(KeyTelegramChatID, "-100")
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(baseViper())
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURI, cfg.BaseURI)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 50*time.Second, cfg.PollMinDelay)
	assert.Equal(t, 70*time.Second, cfg.PollMaxDelay)
	assert.Equal(t, 60*time.Second, cfg.ErrorDelay)
	assert.Equal(t, 10, cfg.NotifyMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.NotifyRetryDelay)
	assert.Equal(t, 3*time.Second, cfg.NotifyCooldown)
	assert.Equal(t, "https://www.apple.com/ca/shop/product/MU6Q3VC/A", cfg.LinkURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.ProxyURLs)
}

func TestLoadMissingRequired(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyPartNumber, "MU6Q3VC/A")

	_, err := Load(v)

	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), KeyLocationCode)
	assert.Contains(t, err.Error(), KeyTelegramToken)
	assert.Contains(t, err.Error(), KeyTelegramChatID)
	assert.NotContains(t, err.Error(), KeyPartNumber)
}

func TestLoadBlankRequiredIsMissing(t *testing.T) {
	v := baseViper()
	v.Set(KeyLocationCode, "   ")

	_, err := Load(v)

	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), KeyLocationCode)
}

func TestLoadDurations(t *testing.T) {
	v := baseViper()
	v.Set(KeyErrorDelay, "90")
	v.Set(KeyPollMinDelay, "1m")
	v.Set(KeyPollMaxDelay, 120)
	v.Set(KeyNotifyCooldown, "500ms")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.ErrorDelay)
	assert.Equal(t, time.Minute, cfg.PollMinDelay)
	assert.Equal(t, 2*time.Minute, cfg.PollMaxDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.NotifyCooldown)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]func(v *viper.Viper){
		"bad duration":   func(v *viper.Viper) { v.Set(KeyErrorDelay, "soon") },
		"inverted range": func(v *viper.Viper) { v.Set(KeyPollMinDelay, "80s") },
		"zero attempts":  func(v *viper.Viper) { v.Set(KeyNotifyMaxAttempts, 0) },
		"zero timeout":   func(v *viper.Viper) { v.Set(KeyRequestTimeout, "0s") },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			v := baseViper()
			mutate(v)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalValues(t *testing.T) {
	v := baseViper()
	v.Set(KeyProxyURLs, "http://a:1, ,http://b:2")
	v.Set(KeyBaseURI, "https://www.apple.com/us/")
	v.Set(KeyLinkURL, "https://example.com/buy")
	v.Set(KeyDebug, true)
	v.Set(KeyArchiveDir, "/tmp/pickup")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.ProxyURLs)
	assert.Equal(t, "https://www.apple.com/us", cfg.BaseURI)
	assert.Equal(t, "https://example.com/buy", cfg.LinkURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/pickup", cfg.ArchiveDir)
}

func TestReadFilesDotEnvLosesToEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PART_NUMBER=MU6Q3VC/A\nLOCATION_CODE=\"M5V 2H1\"\nTELEGRAM_TOKEN=file-token\nTELEGRAM_CHAT_ID=1\n"), 0o600))
	t.Setenv("TELEGRAM_TOKEN", "env-token")

	require.NoError(t, ReadFiles(viper.New(), "", filepath.Join(dir, "nope.env")))

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	require.NoError(t, ReadFiles(v, "", envFile))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.TelegramToken)
	assert.Equal(t, "MU6Q3VC/A", cfg.PartNumber)
	assert.Equal(t, "M5V 2H1", cfg.LocationCode)
}

func TestReadFilesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "pickupwatch.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(
		"PART_NUMBER: MU6Q3VC/A\nLOCATION_CODE: K1A 0B1\nTELEGRAM_TOKEN: t\nTELEGRAM_CHAT_ID: \"5\"\nERROR_DELAY: 30\n"), 0o600))

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, ReadFiles(v, cfgFile, ""))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "K1A 0B1", cfg.LocationCode)
	assert.Equal(t, 30*time.Second, cfg.ErrorDelay)
}

func TestReadFilesMissingExplicitConfig(t *testing.T) {
	err := ReadFiles(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.Error(t, err)
}
