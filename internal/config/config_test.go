package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, time.Monday, cfg.WeekStartsOn())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
week_start: Sunday
grid:
  seats: 42
erp:
  base_url: https://erp.example.com/
  selectors:
    calendar: "#schedule"
booking:
  - name: naver
    url: https://booking.example.com/naver.ics
  - url: https://booking.example.com/kakao.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Sunday, cfg.WeekStartsOn())
	assert.Equal(t, 9, cfg.Grid.Seats)
	assert.Equal(t, "dobong", cfg.Grid.ResourcePrefix)
	assert.Equal(t, "unassigned", cfg.Grid.FallbackResource)
	assert.Equal(t, "https://erp.example.com", cfg.ERP.BaseURL)
	assert.True(t, cfg.ERP.Enabled())
	assert.Equal(t, "#schedule", cfg.ERP.Selectors.Calendar)
	assert.Equal(t, "#login_id", cfg.ERP.Selectors.LoginUser)
	assert.Equal(t, 3, cfg.ERP.ModalRetries)
	require.Len(t, cfg.Booking, 2)
	assert.Equal(t, "naver", cfg.Booking[0].ID)
	assert.Equal(t, "booking-2", cfg.Booking[1].ID)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWeekStartsOnUnknown(t *testing.T) {
	cfg := &Config{WeekStart: "someday"}
	assert.Equal(t, time.Monday, cfg.WeekStartsOn())
	cfg.Normalize()
	assert.Equal(t, "monday", cfg.WeekStart)
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Timezone = "Not/AZone"
	loc, err = cfg.Location()
	assert.Error(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestCredentials(t *testing.T) {
	erp := ERPConfig{UsernameEnv: "DRIVECAL_TEST_USER", PasswordEnv: "DRIVECAL_TEST_PW"}

	_, _, err := erp.Credentials()
	assert.Error(t, err)

	t.Setenv("DRIVECAL_TEST_USER", "desk")
	t.Setenv("DRIVECAL_TEST_PW", "secret")
	user, pw, err := erp.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "desk", user)
	assert.Equal(t, "secret", pw)
}

func TestSaveRejectsEmpty(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
