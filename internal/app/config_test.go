package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@localhost:5432/db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.LedgerLockTimeout)
	require.False(t, cfg.LedgerHealDrift)
	require.Equal(t, 50, cfg.HistoryPageSize)
	require.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	require.Equal(t, 5, cfg.WorkerConcurrency)
	require.Equal(t, time.UTC, cfg.AlertLocation())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigAlertTimezone(t *testing.T) {
	t.Setenv("ALERT_TIMEZONE", "Asia/Jakarta")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "Asia/Jakarta", cfg.AlertLocation().String())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"ALERT_TIMEZONE":      "Mars/Olympus",
		"HISTORY_PAGE_SIZE":   "500",
		"LEDGER_LOCK_TIMEOUT": "0s",
		"WORKER_CONCURRENCY":  "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
