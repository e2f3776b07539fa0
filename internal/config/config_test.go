package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "taskflow.db", cfg.DatabaseURL)
	assert.Equal(t, 5000, cfg.MaxOccurrences)
	assert.Equal(t, 500, cfg.OccurrenceBatchSize)
	assert.Equal(t, 60*time.Second, cfg.DateChangeTolerance)
	assert.Equal(t, 30*time.Second, cfg.SyncTimeout)
	assert.Equal(t, "00:05", cfg.SweepAt)
	assert.Equal(t, 4, cfg.SweepWorkers)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.BotEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", " Postgres ")
	t.Setenv("DATABASE_URL", "host=db user=app")
	t.Setenv("DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("SWEEP_WORKERS", "8")
	t.Setenv("DATE_CHANGE_TOLERANCE", "2m")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_ADMIN_IDS", "11,22")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "host=db user=app", cfg.DatabaseURL)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, 8, cfg.SweepWorkers)
	assert.Equal(t, 2*time.Minute, cfg.DateChangeTolerance)
	assert.Equal(t, []int64{11, 22}, cfg.TelegramAdminIDs)
	assert.True(t, cfg.BotEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad timezone":      {"DEFAULT_TIMEZONE": "Mars/Olympus"},
		"zero workers":      {"SWEEP_WORKERS": "0"},
		"bad integer":       {"MAX_OCCURRENCES": "many"},
		"bot without admin": {"TELEGRAM_TOKEN": "token"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
