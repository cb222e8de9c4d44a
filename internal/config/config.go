package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rawAppConfig struct {
	Port               int                 `yaml:"port"`
	Env                string              `yaml:"env"`
	GoEnv              string              `yaml:"go_env"`
	DSN                string              `yaml:"dsn"`
	DatabaseURL        string              `yaml:"database_url"`
	RedisURL           string              `yaml:"redis_url"`
	Database           rawDatabaseConfig   `yaml:"database"`
	Redis              rawRedisConfig      `yaml:"redis"`
	DBHost             string              `yaml:"db_host"`
	DBPort             int                 `yaml:"db_port"`
	DBUser             string              `yaml:"db_user"`
	DBPassword         string              `yaml:"db_password"`
	DBName             string              `yaml:"db_name"`
	RedisHost          string              `yaml:"redis_host"`
	RedisPort          int                 `yaml:"redis_port"`
	RedisPassword      string              `yaml:"redis_password"`
	RedisDB            *int                `yaml:"redis_db"`
	Paths              RuntimePathsConfig  `yaml:"paths"`
	LogDir             string              `yaml:"log_dir"`
	BackupDir          string              `yaml:"backup_dir"`
	AllowedOrigins     []string            `yaml:"allowed_origins"`
	CORSAllowedOrigins []string            `yaml:"cors_allowed_origins"`
	Timezone           string              `yaml:"timezone"`
	TZ                 string              `yaml:"tz"`
	Auth               rawAuthConfig       `yaml:"auth"`
	JWTSecret          string              `yaml:"jwt_secret"`
	AdminEmails        []string            `yaml:"admin_emails"`
	Mail               rawMailConfig       `yaml:"mail"`
	ResendAPIKey       string              `yaml:"resend_api_key"`
	Storage            rawStorageConfig    `yaml:"storage"`
	S3                 *rawStorageConfig   `yaml:"s3"`
	Backup             rawBackupConfig     `yaml:"backup"`
	HTTPCache          rawHTTPCacheConfig  `yaml:"http_cache"`
	Newsletter         rawNewsletterConfig `yaml:"newsletter"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawAuthConfig struct {
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	JWTSecret     string   `yaml:"jwt_secret"`
	Secret        string   `yaml:"secret"`
	PublicKeyPEM  string   `yaml:"public_key_pem"`
	PublicKeyFile string   `yaml:"public_key_file"`
	AdminEmails   []string `yaml:"admin_emails"`
	ClockSkewSecs *int     `yaml:"clock_skew_seconds"`
}

type rawMailConfig struct {
	Enable        *bool      `yaml:"enable"`
	Provider      string     `yaml:"provider"`
	From          string     `yaml:"from"`
	ReplyTo       string     `yaml:"reply_to"`
	ResendAPIKey  string     `yaml:"resend_api_key"`
	APIKey        string     `yaml:"api_key"`
	ResendBaseURL string     `yaml:"resend_base_url"`
	SMTP          SMTPConfig `yaml:"smtp"`
	BatchSize     int        `yaml:"batch_size"`
	Concurrency   int        `yaml:"concurrency"`
	RatePerSecond float64    `yaml:"rate_per_second"`
	Burst         int        `yaml:"burst"`
}

type rawStorageConfig struct {
	Enable          *bool  `yaml:"enable"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicURL       string `yaml:"public_url"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyle       *bool  `yaml:"path_style"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
}

type rawBackupConfig struct {
	Enable   *bool             `yaml:"enable"`
	Schedule string            `yaml:"schedule"`
	Cron     string            `yaml:"cron"`
	Keep     *int              `yaml:"keep"`
	S3       *rawStorageConfig `yaml:"s3"`
}

type rawHTTPCacheConfig struct {
	Enable     *bool `yaml:"enable"`
	TTLSeconds int   `yaml:"ttl_seconds"`
}

type rawNewsletterConfig struct {
	RecentWindowDays int    `yaml:"recent_window_days"`
	UnsubscribeURL   string `yaml:"unsubscribe_url"`
}

// Load reads the YAML config file, applies defaults and environment overrides
// and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content into an AppConfig. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Auth: AuthConfig{
			ClockSkewSecs: defaultAuthClockSkewSecs,
		},
		Mail: MailConfig{
			Provider:      defaultMailProvider,
			ResendBaseURL: defaultResendBaseURL,
			SMTP:          SMTPConfig{Port: defaultSMTPPort},
			BatchSize:     defaultMailBatchSize,
			Concurrency:   defaultMailConcurrency,
			RatePerSecond: defaultMailRatePerSecond,
			Burst:         defaultMailBurst,
		},
		Storage: StorageConfig{
			Region:      defaultStorageRegion,
			MaxUploadMB: defaultStorageMaxMB,
		},
		Backup: BackupConfig{
			Schedule: defaultBackupSchedule,
			Keep:     defaultBackupKeep,
		},
		HTTPCache: HTTPCacheConfig{
			Enable:     true,
			TTLSeconds: defaultHTTPCacheTTLSecs,
		},
		Newsletter: NewsletterConfig{
			RecentWindowDays: defaultRecentWindowDays,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.GoEnv); v != "" {
		cfg.Env = v
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Backups); v != "" {
		cfg.Paths.Backups = v
	}
	if v := strings.TrimSpace(raw.BackupDir); v != "" {
		cfg.Paths.Backups = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeList(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeList(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	cfg.Auth = applyRawAuthConfig(cfg.Auth, raw)
	cfg.Mail = applyRawMailConfig(cfg.Mail, raw)

	cfg.Storage = applyRawStorageConfig(cfg.Storage, raw.Storage)
	if raw.S3 != nil {
		cfg.Storage = applyRawStorageConfig(cfg.Storage, *raw.S3)
	}

	if raw.Backup.Enable != nil {
		cfg.Backup.Enable = *raw.Backup.Enable
	}
	if v := strings.TrimSpace(raw.Backup.Schedule); v != "" {
		cfg.Backup.Schedule = v
	}
	if v := strings.TrimSpace(raw.Backup.Cron); v != "" {
		cfg.Backup.Schedule = v
	}
	if raw.Backup.Keep != nil {
		cfg.Backup.Keep = *raw.Backup.Keep
	}
	if raw.Backup.S3 != nil {
		cfg.Backup.S3 = applyRawStorageConfig(cfg.Backup.S3, *raw.Backup.S3)
	}
	cfg.Backup.S3.PublicURL = ""

	if raw.HTTPCache.Enable != nil {
		cfg.HTTPCache.Enable = *raw.HTTPCache.Enable
	}
	if raw.HTTPCache.TTLSeconds > 0 {
		cfg.HTTPCache.TTLSeconds = raw.HTTPCache.TTLSeconds
	}
	if raw.Newsletter.RecentWindowDays > 0 {
		cfg.Newsletter.RecentWindowDays = raw.Newsletter.RecentWindowDays
	}
	if v := strings.TrimSpace(raw.Newsletter.UnsubscribeURL); v != "" {
		cfg.Newsletter.UnsubscribeURL = strings.TrimRight(v, "/")
	}

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	for _, v := range []string{raw.Database.DSN, raw.Database.URL, raw.DSN, raw.DatabaseURL} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.DSN = v
		}
	}
	for _, v := range []string{raw.Database.Host, raw.DBHost} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.Host = v
		}
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if raw.DBPort != 0 {
		cfg.Port = raw.DBPort
	}
	for _, v := range []string{raw.Database.User, raw.Database.Username, raw.DBUser} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.User = v
		}
	}
	for _, v := range []string{raw.Database.Password, raw.DBPassword} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.Password = v
		}
	}
	for _, v := range []string{raw.Database.Name, raw.Database.DBName, raw.DBName} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.Name = v
		}
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(raw.RedisHost); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if raw.RedisPort != 0 {
		cfg.Port = raw.RedisPort
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.RedisPassword); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.RedisDB != nil {
		cfg.DB = *raw.RedisDB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}

	return normalizeRedisConfig(cfg)
}

func applyRawAuthConfig(current AuthConfig, raw rawAppConfig) AuthConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Auth.Issuer); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(raw.Auth.Audience); v != "" {
		cfg.Audience = v
	}
	for _, v := range []string{raw.JWTSecret, raw.Auth.Secret, raw.Auth.JWTSecret} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.JWTSecret = v
		}
	}
	if v := strings.TrimSpace(raw.Auth.PublicKeyPEM); v != "" {
		cfg.PublicKeyPEM = v
	}
	if v := strings.TrimSpace(raw.Auth.PublicKeyFile); v != "" {
		cfg.PublicKeyFile = v
	}
	switch {
	case raw.Auth.AdminEmails != nil:
		cfg.AdminEmails = normalizeEmails(raw.Auth.AdminEmails)
	case raw.AdminEmails != nil:
		cfg.AdminEmails = normalizeEmails(raw.AdminEmails)
	}
	if raw.Auth.ClockSkewSecs != nil && *raw.Auth.ClockSkewSecs >= 0 {
		cfg.ClockSkewSecs = *raw.Auth.ClockSkewSecs
	}
	return cfg
}

func applyRawMailConfig(current MailConfig, raw rawAppConfig) MailConfig {
	cfg := current
	if raw.Mail.Enable != nil {
		cfg.Enable = *raw.Mail.Enable
	}
	if v := strings.TrimSpace(raw.Mail.Provider); v != "" {
		cfg.Provider = v
	}
	if v := strings.TrimSpace(raw.Mail.From); v != "" {
		cfg.From = v
	}
	if v := strings.TrimSpace(raw.Mail.ReplyTo); v != "" {
		cfg.ReplyTo = v
	}
	for _, v := range []string{raw.ResendAPIKey, raw.Mail.APIKey, raw.Mail.ResendAPIKey} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.ResendAPIKey = v
		}
	}
	if v := strings.TrimSpace(raw.Mail.ResendBaseURL); v != "" {
		cfg.ResendBaseURL = v
	}
	if v := strings.TrimSpace(raw.Mail.SMTP.Host); v != "" {
		cfg.SMTP.Host = v
	}
	if raw.Mail.SMTP.Port != 0 {
		cfg.SMTP.Port = raw.Mail.SMTP.Port
	}
	if v := strings.TrimSpace(raw.Mail.SMTP.User); v != "" {
		cfg.SMTP.User = v
	}
	if raw.Mail.SMTP.Pass != "" {
		cfg.SMTP.Pass = raw.Mail.SMTP.Pass
	}
	if raw.Mail.BatchSize > 0 {
		cfg.BatchSize = raw.Mail.BatchSize
	}
	if raw.Mail.Concurrency > 0 {
		cfg.Concurrency = raw.Mail.Concurrency
	}
	if raw.Mail.RatePerSecond > 0 {
		cfg.RatePerSecond = raw.Mail.RatePerSecond
	}
	if raw.Mail.Burst > 0 {
		cfg.Burst = raw.Mail.Burst
	}
	return normalizeMailConfig(cfg)
}

func applyRawStorageConfig(current StorageConfig, raw rawStorageConfig) StorageConfig {
	cfg := current
	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimSpace(raw.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	for _, v := range []string{raw.CustomDomain, raw.PublicURL} {
		if v = strings.TrimSpace(v); v != "" {
			cfg.PublicURL = strings.TrimRight(v, "/")
		}
	}
	if raw.PathStyle != nil {
		cfg.PathStyle = *raw.PathStyle
	}
	if raw.MaxUploadMB > 0 {
		cfg.MaxUploadMB = raw.MaxUploadMB
	}
	return cfg
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvEnvironmentName)); v != "" {
		cfg.Env = normalizeEnv(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvResendAPIKey)); v != "" {
		cfg.Mail.ResendAPIKey = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		cfg.Mail.SMTP.Pass = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3AccessKeyID)); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3SecretKey)); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupS3AccessKeyID)); v != "" {
		cfg.Backup.S3.AccessKeyID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupS3SecretKey)); v != "" {
		cfg.Backup.S3.SecretAccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); v != "" {
		cfg.Database.DSN = v
		cfg.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		cfg.Redis.URL = normalizeRedisRawURL(v)
		cfg.RedisURL = cfg.Redis.URL
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if err := ValidateDSN(cfg.DSN); err != nil {
		return err
	}
	switch cfg.Mail.Provider {
	case "resend", "smtp":
	default:
		return fmt.Errorf("invalid mail.provider %q, expected resend|smtp", cfg.Mail.Provider)
	}
	if cfg.Mail.Enable && cfg.Mail.From == "" {
		return fmt.Errorf("mail.from is required when mail is enabled")
	}
	if cfg.Storage.Enable && cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if cfg.Backup.S3.Enable {
		if cfg.Backup.S3.Bucket == "" {
			return fmt.Errorf("backup.s3.bucket is required when backup.s3 is enabled")
		}
		if cfg.Storage.Enable && sameBucket(cfg.Storage, cfg.Backup.S3) {
			return fmt.Errorf("backup.s3.bucket must differ from storage.bucket, which is publicly readable")
		}
	}
	if cfg.Backup.Keep < 0 {
		return fmt.Errorf("invalid backup.keep %d, expected >= 0", cfg.Backup.Keep)
	}
	return nil
}

func sameBucket(a, b StorageConfig) bool {
	endpoint := func(s StorageConfig) string {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(s.Endpoint)), "/")
	}
	return a.Bucket == b.Bucket && endpoint(a) == endpoint(b)
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// HTTPCacheTTL returns the public response cache lifetime.
func (c *AppConfig) HTTPCacheTTL() time.Duration {
	return time.Duration(c.HTTPCache.TTLSeconds) * time.Second
}

// IsAdminEmail reports whether email is listed under auth.admin_emails.
func (c *AppConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range c.Auth.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}
