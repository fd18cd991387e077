package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// AuthSigningKey verifies the identity tokens issued by the credential
	// subsystem. CapabilitySigningKey signs the short-lived record-access
	// tokens minted by this service. They may be set to the same value but
	// usually are not.
	AuthSigningKey       string `mapstructure:"AUTH_SIGNING_KEY"`
	CapabilitySigningKey string `mapstructure:"CAPABILITY_SIGNING_KEY"`

	TokenTTLStandard  time.Duration `mapstructure:"TOKEN_TTL_STANDARD"`
	TokenTTLEmergency time.Duration `mapstructure:"TOKEN_TTL_EMERGENCY"`
	TokenTTLSecret    time.Duration `mapstructure:"TOKEN_TTL_SECRET"`

	EmergencyAccessWindow  time.Duration `mapstructure:"EMERGENCY_ACCESS_WINDOW"`
	SecretAccessWindow     time.Duration `mapstructure:"SECRET_ACCESS_WINDOW"`
	EmergencyNotifyPatient bool          `mapstructure:"EMERGENCY_NOTIFY_PATIENT"`
	SecretNotifyPatient    bool          `mapstructure:"SECRET_NOTIFY_PATIENT"`

	MigrationsDir string   `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit     string   `mapstructure:"BODY_LIMIT"`

	AuditQueueSize    int `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditWriteRetries int `mapstructure:"AUDIT_WRITE_RETRIES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL_STANDARD", "8h")
	v.SetDefault("TOKEN_TTL_EMERGENCY", "1h")
	v.SetDefault("TOKEN_TTL_SECRET", "2h")
	v.SetDefault("EMERGENCY_ACCESS_WINDOW", "24h")
	v.SetDefault("SECRET_ACCESS_WINDOW", "2h")
	v.SetDefault("EMERGENCY_NOTIFY_PATIENT", true)
	v.SetDefault("SECRET_NOTIFY_PATIENT", false)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_WRITE_RETRIES", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CAPABILITY_SIGNING_KEY")
	v.BindEnv("TOKEN_TTL_STANDARD")
	v.BindEnv("TOKEN_TTL_EMERGENCY")
	v.BindEnv("TOKEN_TTL_SECRET")
	v.BindEnv("EMERGENCY_ACCESS_WINDOW")
	v.BindEnv("SECRET_ACCESS_WINDOW")
	v.BindEnv("EMERGENCY_NOTIFY_PATIENT")
	v.BindEnv("SECRET_NOTIFY_PATIENT")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("AUDIT_QUEUE_SIZE")
	v.BindEnv("AUDIT_WRITE_RETRIES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// both signing keys are mandatory: the capability token service cannot mint
// or verify tokens without one, and refusing to start beats running a records
// backend with unauthenticated access.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if c.CapabilitySigningKey == "" {
			return fmt.Errorf("CAPABILITY_SIGNING_KEY is required when ENV=%q", c.Env)
		}
	}

	if c.TokenTTLStandard <= 0 || c.TokenTTLEmergency <= 0 || c.TokenTTLSecret <= 0 {
		return fmt.Errorf("token TTLs must be positive durations")
	}
	if c.EmergencyAccessWindow <= 0 || c.SecretAccessWindow <= 0 {
		return fmt.Errorf("override access windows must be positive durations")
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive")
	}

	return nil
}
