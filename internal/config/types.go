package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Timezone       string                `yaml:"timezone"`
	Auth           AuthConfig            `yaml:"auth"`
	Mail           MailConfig            `yaml:"mail"`
	Storage        StorageConfig         `yaml:"storage"`
	Backup         BackupConfig          `yaml:"backup"`
	HTTPCache      HTTPCacheConfig       `yaml:"http_cache"`
	Newsletter     NewsletterConfig      `yaml:"newsletter"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type RuntimePathsConfig struct {
	Logs    string `yaml:"logs"`
	Backups string `yaml:"backups"`
}

// AuthConfig describes how identity-provider session tokens are verified.
// Exactly one of JWTSecret (HS256) or PublicKeyPEM/PublicKeyFile (RS256) is used.
type AuthConfig struct {
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	JWTSecret     string   `yaml:"jwt_secret"`
	PublicKeyPEM  string   `yaml:"public_key_pem"`
	PublicKeyFile string   `yaml:"public_key_file"`
	AdminEmails   []string `yaml:"admin_emails"`
	ClockSkewSecs int      `yaml:"clock_skew_seconds"`
}

type MailConfig struct {
	Enable        bool       `yaml:"enable"`
	Provider      string     `yaml:"provider"` // "resend" | "smtp"
	From          string     `yaml:"from"`
	ReplyTo       string     `yaml:"reply_to"`
	ResendAPIKey  string     `yaml:"resend_api_key"`
	ResendBaseURL string     `yaml:"resend_base_url"`
	SMTP          SMTPConfig `yaml:"smtp"`
	BatchSize     int        `yaml:"batch_size"`
	Concurrency   int        `yaml:"concurrency"`
	RatePerSecond float64    `yaml:"rate_per_second"`
	Burst         int        `yaml:"burst"`
}

type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// StorageConfig points at any S3-compatible object store.
type StorageConfig struct {
	Enable          bool   `yaml:"enable"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicURL       string `yaml:"public_url"`
	PathStyle       bool   `yaml:"path_style"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
}

type BackupConfig struct {
	Enable   bool   `yaml:"enable"`
	Schedule string `yaml:"schedule"` // standard 5-field cron expression
	Keep     int    `yaml:"keep"`
	// S3 is a private bucket for archives. It is never the cover bucket and
	// never carries a public URL.
	S3 StorageConfig `yaml:"s3"`
}

type HTTPCacheConfig struct {
	Enable     bool `yaml:"enable"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

type NewsletterConfig struct {
	RecentWindowDays int `yaml:"recent_window_days"`
	// UnsubscribeURL is the public base of the one-click unsubscribe link;
	// "?token=..." is appended.
	UnsubscribeURL string `yaml:"unsubscribe_url"`
}
