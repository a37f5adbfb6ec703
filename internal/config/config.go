package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// GeocodeConfig holds Kakao local search settings.
type GeocodeConfig struct {
	KakaoAPIKey string  `yaml:"kakao_api_key" mapstructure:"kakao_api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// IngestConfig configures the CSV ingestion job.
type IngestConfig struct {
	Geocode           bool     `yaml:"geocode" mapstructure:"geocode"`
	FallbackEncodings []string `yaml:"fallback_encodings" mapstructure:"fallback_encodings"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credential variables used by existing deployments.
	_ = v.BindEnv("store.credentials_json", "MARKERS_STORE_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS_JSON")
	_ = v.BindEnv("store.credentials_file", "MARKERS_STORE_CREDENTIALS_FILE", "FIREBASE_CREDENTIAL")

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("geocode.base_url", "https://dapi.kakao.com")
	v.SetDefault("geocode.rate_limit", 0)
	v.SetDefault("ingest.geocode", true)
	v.SetDefault("ingest.fallback_encodings", []string{"euc-kr"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// StoreCredential is the document store credential, supplied inline or as a file.
// Either DatabaseURL or the discrete connection fields are used.
type StoreCredential struct {
	Driver      string `json:"driver"`
	DatabaseURL string `json:"database_url"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Password    string `json:"password"`
	DBName      string `json:"dbname"`
	SSLMode     string `json:"sslmode"`
}

// DSN returns the connection string described by the credential.
func (c StoreCredential) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.Host == "" {
		return ""
	}

	host := c.Host
	if c.Port > 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + c.DBName}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// ResolveStore returns the driver and connection string to open the store with.
// The inline credential wins over the credential file, which wins over database_url.
func (s StoreConfig) ResolveStore() (driver, dsn string, err error) {
	driver = s.Driver

	var cred *StoreCredential
	switch {
	case s.CredentialsJSON != "":
		cred = &StoreCredential{}
		if err := json.Unmarshal([]byte(s.CredentialsJSON), cred); err != nil {
			return "", "", eris.Wrap(err, "config: parse inline store credential")
		}
	case s.CredentialsFile != "":
		data, err := os.ReadFile(s.CredentialsFile)
		if err != nil {
			return "", "", eris.Wrapf(err, "config: read store credential %s", s.CredentialsFile)
		}
		cred = &StoreCredential{}
		if err := json.Unmarshal(data, cred); err != nil {
			return "", "", eris.Wrapf(err, "config: parse store credential %s", s.CredentialsFile)
		}
	}

	dsn = s.DatabaseURL
	if cred != nil {
		if cred.Driver != "" {
			driver = cred.Driver
		}
		if d := cred.DSN(); d != "" {
			dsn = d
		}
	}

	switch driver {
	case "postgres":
		if dsn == "" {
			return "", "", eris.New("config: store credential is not set (MARKERS_STORE_CREDENTIALS_JSON, MARKERS_STORE_CREDENTIALS_FILE or MARKERS_STORE_DATABASE_URL)")
		}
	case "sqlite":
		if dsn == "" {
			dsn = "markers.db"
		}
	default:
		return "", "", eris.Errorf("config: unsupported store driver: %s", driver)
	}
	return driver, dsn, nil
}

// Validate checks the settings a command needs before it touches any backend.
// Mode is "serve" or "ingest".
func (c *Config) Validate(mode string) error {
	var problems []string

	if _, _, err := c.Store.ResolveStore(); err != nil {
		problems = append(problems, err.Error())
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "ingest":
		if c.Ingest.Geocode && strings.TrimSpace(c.Geocode.KakaoAPIKey) == "" {
			problems = append(problems, "geocode.kakao_api_key is required when ingest.geocode is enabled (MARKERS_GEOCODE_KAKAO_API_KEY)")
		}
		if c.Geocode.RateLimit < 0 {
			problems = append(problems, "geocode.rate_limit must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
