package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Certificates CertificatesConfig
	Academy      AcademyConfig
	Audit        AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
	// RolePrivileges overrides the portal role to workflow privilege map, e.g. "INSTRUCTOR:administrator".
	RolePrivileges map[string]string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Signatory is a title/name pair printed on certificates, in order.
type Signatory struct {
	Title string
	Name  string
}

// CertificatesConfig controls certificate storage and signed download links.
type CertificatesConfig struct {
	StorageDir      string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Signatories     []Signatory
}

// AcademyConfig holds the training program rules.
type AcademyConfig struct {
	ProgramLevels         []string
	MinAttendance         float64
	ExamPassMark          float64
	ProgramCacheTTL       time.Duration
	TerminalRoleByProgram map[string]string
}

// AuditConfig tunes the retry queue used for failed audit appends.
type AuditConfig struct {
	RetryWorkers int
	RetryMax     int
	RetryDelay   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:         v.GetString("JWT_SECRET"),
		Issuer:         v.GetString("JWT_ISSUER"),
		Expiration:     parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RolePrivileges: parsePairs(v.GetString("ROLE_PRIVILEGE_MAP")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		PublicBaseURL:   strings.TrimRight(v.GetString("CERTIFICATES_PUBLIC_BASE_URL"), "/"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 7*24*time.Hour),
		Signatories:     parseSignatories(v.GetString("CERTIFICATES_SIGNATORIES")),
	}

	cfg.Academy = AcademyConfig{
		ProgramLevels:         splitAndTrim(v.GetString("PROGRAM_LEVELS")),
		MinAttendance:         v.GetFloat64("PROMOTION_MIN_ATTENDANCE"),
		ExamPassMark:          v.GetFloat64("EXAM_PASS_MARK"),
		ProgramCacheTTL:       parseDuration(v.GetString("PROGRAM_CACHE_TTL"), time.Hour),
		TerminalRoleByProgram: parsePairs(v.GetString("TERMINAL_ROLE_MAP")),
	}

	cfg.Audit = AuditConfig{
		RetryWorkers: v.GetInt("AUDIT_RETRY_WORKERS"),
		RetryMax:     v.GetInt("AUDIT_RETRY_MAX"),
		RetryDelay:   parseDuration(v.GetString("AUDIT_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bible_school")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "church-portal")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_PUBLIC_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "168h")
	v.SetDefault("CERTIFICATES_SIGNATORIES", "Director of Bible School:,Senior Pastor:")

	v.SetDefault("PROGRAM_LEVELS", "Foundation,Discipleship,Workers,Leadership,Pastoral")
	v.SetDefault("PROMOTION_MIN_ATTENDANCE", 75)
	v.SetDefault("EXAM_PASS_MARK", 50)
	v.SetDefault("PROGRAM_CACHE_TTL", "1h")
	v.SetDefault("TERMINAL_ROLE_MAP", "Leadership:leader,Pastoral:pastor")

	v.SetDefault("AUDIT_RETRY_WORKERS", 1)
	v.SetDefault("AUDIT_RETRY_MAX", 3)
	v.SetDefault("AUDIT_RETRY_DELAY", "2s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "key:value,key:value" lists.
func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, item := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pairs[key] = value
	}
	return pairs
}

// parseSignatories reads "Title:Name,Title:Name" keeping order; names may be blank.
func parseSignatories(raw string) []Signatory {
	items := splitAndTrim(raw)
	signatories := make([]Signatory, 0, len(items))
	for _, item := range items {
		title, name, _ := strings.Cut(item, ":")
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		signatories = append(signatories, Signatory{Title: title, Name: strings.TrimSpace(name)})
	}
	return signatories
}
