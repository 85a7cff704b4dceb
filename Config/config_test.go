package Config

import (
	"os"
	"path/filepath"
	"testing"

	"Pitstop/Models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "DB_DRIVER", "DB_DSN", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT", "VENUE_FILE",
	"DST_GAP_POLICY", "DIGEST_CRON", "SLACK_TOKEN", "SLACK_CHANNEL", "SLACK_APP_TOKEN", "SMTP_HOST", "SMTP_PORT",
	"SMTP_USER", "SMTP_PASS", "SMTP_FROM", "DIGEST_TO", "FIREBASE_CREDENTIALS",
}

// clearConfigEnv blanks every key for the test and restores it afterwards.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "pitstop.db", cfg.DBDSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "venue.json5", cfg.VenueFile)
	assert.Equal(t, "offset_after", cfg.GapPolicy)
	assert.Empty(t, cfg.DigestCron)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
JWT_SECRET=from-file
DB_DRIVER=postgres
DB_DSN="host=db user=pitstop dbname=pitstop"
SMTP_HOST=mail.example.com
SMTP_PORT=465
SMTP_USER=ops@example.com
DIGEST_TO=lead@example.com, owner@example.com
`), 0o600))
	t.Setenv("PORT", "8080")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "host=db user=pitstop dbname=pitstop", cfg.DBDSN)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, []string{"lead@example.com", "owner@example.com"}, cfg.SMTP.To)
	assert.Equal(t, "ops@example.com", cfg.SMTP.From)

	mail := cfg.SMTP.EmailConfig("Pitstop Arena")
	assert.True(t, mail.TLSEnabled)
	assert.Equal(t, "Pitstop Arena", mail.FromName)
}

func TestLoad_Rejections(t *testing.T) {
	clearConfigEnv(t)
	missing := filepath.Join(t.TempDir(), "none.env")

	_, err := Load(missing)
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DB_DRIVER", "oracle")
	_, err = Load(missing)
	assert.ErrorContains(t, err, "oracle")

	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("SMTP_PORT", "smtp")
	_, err = Load(missing)
	assert.ErrorContains(t, err, "SMTP_PORT")
}

func TestParseVenue(t *testing.T) {
	venue, err := ParseVenue([]byte(`{
		// venue master data
		name: "Pitstop Arena",
		timezone: "Europe/Berlin",
		shared_pool_id: "pool",
		zones: [
			{
				name: "Main Hall",
				responsible_party: "lead-1",
				workstations: [
					{name: "A1", responsible_party: "emp-1"},
					{name: "A2"},
				],
			},
		],
		equipment: [
			{name: "PC-A1", type: "PC", workstation: "A1", cleaning_interval_days: 14, thermal_interval_days: 180},
		],
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", venue.TimeZone)
	assert.Equal(t, "pool", venue.SharedPoolID)
	require.Len(t, venue.Zones, 1)
	assert.Len(t, venue.Zones[0].Workstations, 2)
	assert.Equal(t, Models.EquipmentPC, venue.Equipment[0].Type)
	assert.Equal(t, 180, venue.Equipment[0].ThermalIntervalDays)
}

func TestParseVenue_Rejections(t *testing.T) {
	_, err := ParseVenue([]byte(`{name: "x"}`))
	assert.ErrorContains(t, err, "timezone")

	_, err = ParseVenue([]byte(`{timezone: "UTC", zones: [{name: "z", workstations: [{name: "A"}, {name: "A"}]}]}`))
	assert.ErrorContains(t, err, "listed twice")

	_, err = ParseVenue([]byte(`{timezone: "UTC", equipment: [{name: "PC", type: "PC", workstation: "nowhere"}]}`))
	assert.ErrorContains(t, err, "nowhere")

	_, err = ParseVenue([]byte(`{timezone: `))
	assert.Error(t, err)
}

func TestLoadVenue_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venue.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{name: "Lab", timezone: "UTC",}`), 0o600))

	venue, err := LoadVenue(path)
	require.NoError(t, err)
	assert.Equal(t, "Lab", venue.Name)

	_, err = LoadVenue(filepath.Join(t.TempDir(), "absent.json5"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console", "pitstop")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = NewLogger("bogus", "json", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(0))
}
