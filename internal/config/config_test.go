package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValidExceptRequiredFields(t *testing.T) {
	cfg := Default()
	cfg.Mail.Username = "jane@example.com"

	out, v := NormalizeAndValidate(cfg)
	assert.True(t, v.OK(), "errors: %v", v.Errors)
	assert.Equal(t, "jane@example.com", out.Mail.FromAddress)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
mail:
  username: jane@example.com
  sender_name: Jane Doe
rate:
  daily_limit: 25
follow_up:
  interval_days: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", cfg.Mail.Username)
	assert.Equal(t, 25, cfg.Rate.DailyLimit)
	assert.Equal(t, 5*24*time.Hour, cfg.FollowUpInterval())
	// Untouched sections keep defaults.
	assert.Equal(t, "smtp.gmail.com", cfg.Mail.SMTPHost)
	assert.Equal(t, 8407, cfg.API.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("rate:\n  daily_limit: 25\n"), 0o644))

	t.Setenv("CVMAILER_DAILY_LIMIT", "5")
	t.Setenv("CVMAILER_SMTP_USER", "env@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Rate.DailyLimit)
	assert.Equal(t, "env@example.com", cfg.Mail.Username)
}

func TestValidateFlagsBrokenConfig(t *testing.T) {
	cfg := Default()
	cfg.Mail.SMTPHost = ""
	cfg.Rate.DailyLimit = 0
	cfg.Rate.DelayMinSeconds = 30
	cfg.Rate.DelayMaxSeconds = 10
	cfg.Sheets.SheetNameFilter = "[invalid"

	_, v := NormalizeAndValidate(cfg)
	assert.False(t, v.OK())
	assert.GreaterOrEqual(t, len(v.Errors), 4)
}

func TestValidateResponsesRequirements(t *testing.T) {
	cfg := Default()
	cfg.Mail.Username = "jane@example.com"
	cfg.Responses.Enabled = true

	_, v := NormalizeAndValidate(cfg)
	assert.False(t, v.OK())

	cfg.Responses.IMAPHost = "imap.gmail.com"
	cfg.Responses.IMAPPort = 993
	cfg.Responses.Username = "jane@example.com"
	out, v := NormalizeAndValidate(cfg)
	assert.True(t, v.OK(), "errors: %v", v.Errors)
	assert.Equal(t, "INBOX", out.Responses.Mailbox)
}

func TestValidateWarnsOnAggressivePacing(t *testing.T) {
	cfg := Default()
	cfg.Mail.Username = "jane@example.com"
	cfg.Rate.DelayMinSeconds = 1
	cfg.Rate.DelayMaxSeconds = 2

	_, v := NormalizeAndValidate(cfg)
	assert.True(t, v.OK())
	assert.NotEmpty(t, v.Warnings)
}

func TestEnsureUserConfigWritesDefaultsOnce(t *testing.T) {
	dir := t.TempDir()

	path, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Rate.DailyLimit, cfg.Rate.DailyLimit)

	// A user edit survives the next bootstrap.
	cfg.Rate.DailyLimit = 7
	require.NoError(t, SaveAtomic(path, cfg))
	path2, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Rate.DailyLimit)
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, SaveAtomic(path, Default()))

	cfg := Default()
	cfg.Rate.DailyLimit = 9
	require.NoError(t, SaveAtomic(path, cfg))

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err)
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Rate.DailyLimit)
}
