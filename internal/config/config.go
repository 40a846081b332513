package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	// NATSEmbedded as NATS_URL starts an in-process JetStream server.
	NATSEmbedded = "embedded"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	DataDir       string `mapstructure:"DATA_DIR"`

	RedisURL string `mapstructure:"REDIS_URL"`
	NATSURL  string `mapstructure:"NATS_URL"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	PatientReferencePath string `mapstructure:"PATIENT_REFERENCE_PATH"`

	TRBaseURL      string        `mapstructure:"TR_BASE_URL"`
	TRClientID     string        `mapstructure:"TR_CLIENT_ID"`
	TRAuthToken    string        `mapstructure:"TR_AUTH_TOKEN"`
	TRTimeout      time.Duration `mapstructure:"TR_TIMEOUT"`
	TRRateLimitRPS float64       `mapstructure:"TR_RATE_LIMIT_RPS"`
	TRAliasFile    string        `mapstructure:"TR_ALIAS_FILE"`

	ProviderReferencePath string        `mapstructure:"PROVIDER_REFERENCE_PATH"`
	ProviderClientID      string        `mapstructure:"PROVIDER_CLIENT_ID"`
	ProviderAuthToken     string        `mapstructure:"PROVIDER_AUTH_TOKEN"`
	ProviderTimeout       time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	ProviderRateLimitRPS  float64       `mapstructure:"PROVIDER_RATE_LIMIT_RPS"`
	ProviderVerify        bool          `mapstructure:"PROVIDER_VERIFY"`

	MCIBaseURL   string        `mapstructure:"MCI_BASE_URL"`
	MCIClientID  string        `mapstructure:"MCI_CLIENT_ID"`
	MCIAuthToken string        `mapstructure:"MCI_AUTH_TOKEN"`
	MCITimeout   time.Duration `mapstructure:"MCI_TIMEOUT"`

	EncounterFetchLimit int `mapstructure:"ENCOUNTER_FETCH_LIMIT"`
	PatientFeedLimit    int `mapstructure:"PATIENT_FEED_LIMIT"`

	EncounterTypesKey      string        `mapstructure:"ENCOUNTER_TYPES_KEY"`
	EncounterTypesURL      string        `mapstructure:"ENCOUNTER_TYPES_URL"`
	EncounterTypesFallback []string      `mapstructure:"ENCOUNTER_TYPES"`
	RefdataRefreshInterval time.Duration `mapstructure:"REFDATA_REFRESH_INTERVAL"`
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"ENV":                      "development",
	"LOG_LEVEL":                "info",
	"STORAGE_DRIVER":           StoragePostgres,
	"DB_MAX_CONNS":             20,
	"DB_MIN_CONNS":             2,
	"SQLITE_PATH":              "data/shr.db",
	"DATA_DIR":                 "data",
	"CORS_ORIGINS":             "http://localhost:3000",
	"RATE_LIMIT_RPS":           50,
	"RATE_LIMIT_BURST":         100,
	"REQUEST_TIMEOUT":          "30s",
	"BODY_LIMIT":               "4M",
	"PATIENT_REFERENCE_PATH":   "http://localhost:8081/api/v1/patients",
	"TR_TIMEOUT":               "5s",
	"TR_RATE_LIMIT_RPS":        20,
	"PROVIDER_REFERENCE_PATH":  "http://localhost:8082/api/1.0/providers",
	"PROVIDER_TIMEOUT":         "5s",
	"PROVIDER_RATE_LIMIT_RPS":  20,
	"PROVIDER_VERIFY":          true,
	"MCI_TIMEOUT":              "10s",
	"ENCOUNTER_FETCH_LIMIT":    20,
	"PATIENT_FEED_LIMIT":       200,
	"ENCOUNTER_TYPES_KEY":      "shr:refdata:encounter-types",
	"REFDATA_REFRESH_INTERVAL": "1h",
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORAGE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH", "DATA_DIR",
	"REDIS_URL", "NATS_URL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"PATIENT_REFERENCE_PATH",
	"TR_BASE_URL", "TR_CLIENT_ID", "TR_AUTH_TOKEN", "TR_TIMEOUT", "TR_RATE_LIMIT_RPS", "TR_ALIAS_FILE",
	"PROVIDER_REFERENCE_PATH", "PROVIDER_CLIENT_ID", "PROVIDER_AUTH_TOKEN", "PROVIDER_TIMEOUT", "PROVIDER_RATE_LIMIT_RPS", "PROVIDER_VERIFY",
	"MCI_BASE_URL", "MCI_CLIENT_ID", "MCI_AUTH_TOKEN", "MCI_TIMEOUT",
	"ENCOUNTER_FETCH_LIMIT", "PATIENT_FEED_LIMIT",
	"ENCOUNTER_TYPES_KEY", "ENCOUNTER_TYPES_URL", "ENCOUNTER_TYPES", "REFDATA_REFRESH_INTERVAL",
}

// Load reads the environment, falling back to a .env file in the working
// directory. It does not validate; call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.EncounterTypesFallback = splitList(cfg.EncounterTypesFallback)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if cfg.EncounterTypesURL == "" && cfg.TRBaseURL != "" {
		cfg.EncounterTypesURL = strings.TrimSuffix(cfg.TRBaseURL, "/") + "/openmrs/ws/rest/v1/tr/vs/encounter-type"
	}
	return cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", StoragePostgres)
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is %q", StorageSQLite)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageSQLite, c.StorageDriver)
	}

	if !c.IsDev() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set outside development (current ENV=%q)", c.Env)
		}
		if c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
			return fmt.Errorf("one of AUTH_JWKS_URL or AUTH_SIGNING_KEY is required outside development")
		}
	}

	if c.EncounterFetchLimit <= 0 {
		return fmt.Errorf("ENCOUNTER_FETCH_LIMIT must be positive, got %d", c.EncounterFetchLimit)
	}
	if c.PatientFeedLimit <= 0 {
		return fmt.Errorf("PATIENT_FEED_LIMIT must be positive, got %d", c.PatientFeedLimit)
	}
	if c.TRTimeout <= 0 {
		return fmt.Errorf("TR_TIMEOUT must be positive, got %s", c.TRTimeout)
	}
	if c.PatientReferencePath == "" {
		return fmt.Errorf("PATIENT_REFERENCE_PATH is required")
	}
	if c.ProviderReferencePath == "" {
		return fmt.Errorf("PROVIDER_REFERENCE_PATH is required")
	}
	if c.ProviderVerify && c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	return nil
}
