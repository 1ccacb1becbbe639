package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourneighborhoodchef/pickupwatch/internal/config"
)

func TestRootFailsWithoutRequiredConfig(t *testing.T) {
	for _, key := range []string{
		config.KeyPartNumber, config.KeyLocationCode, config.KeyTelegramToken, config.KeyTelegramChatID,
	} {
		t.Setenv(key, "")
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	require.ErrorIs(t, err, config.ErrMissing)
}

func TestRootRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown argument")
}

func TestBuildWiresMonitor(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := &config.Config{
		PartNumber:        "MU6Q3VC/A",
		LocationCode:      "M5V 2H1",
		BaseURI:           config.DefaultBaseURI,
		TelegramToken:     "123:abc",
		TelegramChatID:    "-100",
		TelegramPin:       true,
		LinkURL:           config.DefaultBaseURI + "/shop/product/MU6Q3VC/A",
		ProxyURLs:         []string{"http://127.0.0.1:1", "http://127.0.0.1:2"},
		RequestTimeout:    5 * time.Second,
		PollMinDelay:      50 * time.Second,
		PollMaxDelay:      70 * time.Second,
		ErrorDelay:        60 * time.Second,
		NotifyMaxAttempts: 10,
		NotifyRetryDelay:  5 * time.Second,
		NotifyCooldown:    3 * time.Second,
		ArchiveDir:        t.TempDir(),
		ArchiveName:       "AppleStore",
	}

	mon, err := build(context.Background(), cfg, log)

	require.NoError(t, err)
	require.NotNil(t, mon)
	assert.Empty(t, mon.Previous())
}
