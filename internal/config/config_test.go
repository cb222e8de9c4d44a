package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvJWTSecret, EnvResendAPIKey, EnvSMTPPassword, EnvS3AccessKeyID, EnvS3SecretKey,
		EnvBackupS3AccessKeyID, EnvBackupS3SecretKey, EnvDatabaseDSN, EnvRedisURL,
		EnvConfigPath, EnvEnvironmentName, EnvHome,
	} {
		t.Setenv(key, "")
	}
}

func TestParseDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)/inkwell")
	assert.Equal(t, "resend", cfg.Mail.Provider)
	assert.Equal(t, defaultMailBatchSize, cfg.Mail.BatchSize)
	assert.True(t, cfg.HTTPCache.Enable)
	assert.Equal(t, 30, cfg.Newsletter.RecentWindowDays)
	assert.Equal(t, "0 3 * * *", cfg.Backup.Schedule)
}

func TestParseAliases(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(`
port: 8080
env: prod
db_host: db.internal
db_name: blog
redis:
  host: cache.internal
  port: 6380
  password: s3cret
  db: 2
jwt_secret: from-root
admin_emails: [" Owner@Example.com ", "not-an-email", "owner@example.com"]
cors_allowed_origins: ["https://blog.example.com", " "]
s3:
  enable: true
  bucket: covers
  custom_domain: https://cdn.example.com/
backup:
  cron: "15 2 * * *"
  keep: 3
newsletter:
  unsubscribe_url: https://blog.example.com/unsubscribe/
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Contains(t, cfg.DSN, "tcp(db.internal:3306)/blog")
	assert.Equal(t, "redis://:s3cret@cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, "from-root", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"owner@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, []string{"https://blog.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Storage.Enable)
	assert.Equal(t, "covers", cfg.Storage.Bucket)
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.PublicURL)
	assert.Equal(t, "15 2 * * *", cfg.Backup.Schedule)
	assert.Equal(t, 3, cfg.Backup.Keep)
	assert.Equal(t, "https://blog.example.com/unsubscribe", cfg.Newsletter.UnsubscribeURL)

	assert.True(t, cfg.IsAdminEmail("OWNER@example.com"))
	assert.False(t, cfg.IsAdminEmail(""))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("portt: 8080\n"))
	assert.Error(t, err)
}

func TestParseValidation(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"port":          "port: 70000\n",
		"mail provider": "mail:\n  provider: pigeon\n",
		"mail from":     "mail:\n  enable: true\n",
		"bucket":        "storage:\n  enable: true\n",
		"dsn":           "dsn: \"not a dsn\"\n",
		"backup bucket": "backup:\n  s3:\n    enable: true\n",
		"shared bucket": "storage:\n  enable: true\n  bucket: media\nbackup:\n  s3:\n    enable: true\n    bucket: media\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvRedisURL, "redis.internal:6379/1")
	t.Setenv(EnvEnvironmentName, "prod")

	cfg, err := Parse([]byte("jwt_secret: file-secret\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis://redis.internal:6379/1", cfg.RedisURL)
	assert.Equal(t, "production", cfg.Env)
}

func TestLoadReadsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4000\ntimezone: Europe/Berlin\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestRuntimePaths(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("paths:\n  logs: /var/log/inkwell\nbackup_dir: /srv/backups\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/log/inkwell", cfg.LogDir())
	assert.Equal(t, "/srv/backups", cfg.BackupDir())
}

func TestRuntimePathsRelativeToHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	cfg, err := Parse([]byte("paths:\n  logs: var/log\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "var", "log"), cfg.LogDir())
	assert.Equal(t, filepath.Join(home, "backups"), cfg.BackupDir())

	var unset *AppConfig
	assert.Equal(t, filepath.Join(home, "logs"), unset.LogDir())
}

func TestRuntimeHomeUsesWorkingDirForTestBinaries(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	if dir, ok := binaryDir(); ok && !underTempDir(dir) {
		t.Skip("test binary is not in the temp dir")
	}
	assert.Equal(t, wd, runtimeHome())
}

func TestParseBackupBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBackupS3SecretKey, "env-backup-secret")
	cfg, err := Parse([]byte(`
storage:
  enable: true
  bucket: media
  public_url: https://cdn.example.com
backup:
  s3:
    enable: true
    bucket: media-archives
    access_key_id: backup-ak
    public_url: https://leak.example.com
`))
	require.NoError(t, err)
	assert.True(t, cfg.Backup.S3.Enable)
	assert.Equal(t, "media-archives", cfg.Backup.S3.Bucket)
	assert.Equal(t, "backup-ak", cfg.Backup.S3.AccessKeyID)
	assert.Equal(t, "env-backup-secret", cfg.Backup.S3.SecretAccessKey)
	assert.Empty(t, cfg.Backup.S3.PublicURL)
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.PublicURL)
}
