// Package config resolves settings from defaults, an optional config.yaml in
// the config dir, a .env file and ACTAS_* environment variables, in that
// order of increasing precedence. CLI flags override the result.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"actas-cli/internal/model"
	"actas-cli/internal/syncer"
	"actas-cli/internal/validate"
)

const EnvPrefix = "ACTAS"

type Config struct {
	Dir            string        `mapstructure:"dir" json:"dir" validate:"required"`
	Scope          string        `mapstructure:"scope" json:"scope" validate:"required"`
	RemoteURL      string        `mapstructure:"remote_url" json:"remoteUrl" validate:"omitempty,url"`
	MinScore       float64       `mapstructure:"min_score" json:"minScore"`
	MaxScore       float64       `mapstructure:"max_score" json:"maxScore" validate:"gtfield=MinScore"`
	SyncInterval   time.Duration `mapstructure:"sync_interval" json:"syncInterval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"requestTimeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" json:"maxAttempts" validate:"gte=1"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" json:"maxBackoff" validate:"gt=0"`
	Addr           string        `mapstructure:"addr" json:"addr" validate:"required"`
	DatabaseDSN    string        `mapstructure:"database_dsn" json:"-"`
	Catalog        string        `mapstructure:"catalog" json:"catalog"`
	LogLevel       string        `mapstructure:"log_level" json:"logLevel" validate:"oneof=debug info warn warning error"`
	LogFormat      string        `mapstructure:"log_format" json:"logFormat" validate:"oneof=text json"`
}

// Dir is the config/data directory: ACTAS_CONFIG_DIR, else ~/.actas.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".actas"), nil
}

func defaults(v *viper.Viper, dir string) {
	v.SetDefault("dir", dir)
	v.SetDefault("scope", "default")
	v.SetDefault("remote_url", "http://127.0.0.1:8080")
	v.SetDefault("min_score", float64(validate.DefaultMinScore))
	v.SetDefault("max_score", float64(validate.DefaultMaxScore))
	v.SetDefault("sync_interval", 4*time.Second)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("max_attempts", 5)
	v.SetDefault("max_backoff", time.Minute)
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_dsn", "")
	v.SetDefault("catalog", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads the configuration. A missing .env or config.yaml is not an error;
// a malformed one is.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	defaults(v, dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config.yaml")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	c.Dir = expandHome(c.Dir)
	c.Catalog = expandHome(c.Catalog)
	return c, c.Check()
}

func (c Config) Check() error {
	if err := model.Validator().Struct(c); err != nil {
		return model.InputError{Err: errors.Wrap(err, "config")}
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (c Config) Engine() validate.Engine {
	return validate.Engine{MinScore: c.MinScore, MaxScore: c.MaxScore}
}

// Sync maps the settings onto the sync coordinator. The first retry waits
// one sync interval.
func (c Config) Sync() syncer.Config {
	return syncer.Config{
		Interval:       c.SyncInterval,
		RequestTimeout: c.RequestTimeout,
		BaseBackoff:    c.SyncInterval,
		MaxBackoff:     c.MaxBackoff,
		MaxAttempts:    c.MaxAttempts,
	}
}
