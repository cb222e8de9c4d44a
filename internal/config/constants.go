package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 3030
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "inkwell"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultMailProvider      = "resend"
	defaultResendBaseURL     = "https://api.resend.com"
	defaultSMTPPort          = 587
	defaultMailBatchSize     = 50
	defaultMailConcurrency   = 4
	defaultMailRatePerSecond = 2.0
	defaultMailBurst         = 5

	defaultStorageRegion     = "us-east-1"
	defaultStorageMaxMB      = 5
	defaultBackupSchedule    = "0 3 * * *"
	defaultBackupKeep        = 7
	defaultHTTPCacheTTLSecs  = 15
	defaultRecentWindowDays  = 30
	defaultAuthClockSkewSecs = 30
)

// Environment variables that override secrets from the config file.
const (
	EnvJWTSecret     = "INKWELL_JWT_SECRET"
	EnvResendAPIKey  = "INKWELL_RESEND_API_KEY"
	EnvSMTPPassword  = "INKWELL_SMTP_PASSWORD"
	EnvS3AccessKeyID = "INKWELL_S3_ACCESS_KEY_ID"
	EnvS3SecretKey   = "INKWELL_S3_SECRET_ACCESS_KEY"

	EnvBackupS3AccessKeyID = "INKWELL_BACKUP_S3_ACCESS_KEY_ID"
	EnvBackupS3SecretKey   = "INKWELL_BACKUP_S3_SECRET_ACCESS_KEY"

	EnvDatabaseDSN     = "INKWELL_DATABASE_DSN"
	EnvRedisURL        = "INKWELL_REDIS_URL"
	EnvConfigPath      = "INKWELL_CONFIG"
	EnvEnvironmentName = "INKWELL_ENV"
	// EnvHome anchors relative runtime paths such as logs and backups.
	EnvHome = "INKWELL_HOME"
)
