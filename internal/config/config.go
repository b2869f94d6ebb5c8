package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Source        SourceConfig        `yaml:"source" mapstructure:"source"`
	Output        OutputConfig        `yaml:"output" mapstructure:"output"`
	Accessibility AccessibilityConfig `yaml:"accessibility" mapstructure:"accessibility"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// SourceConfig selects where input datasets are read from.
type SourceConfig struct {
	Format      string `yaml:"format" mapstructure:"format" validate:"oneof=csv xlsx shp sqlite postgres"`
	Path        string `yaml:"path" mapstructure:"path" validate:"required_unless=Format postgres"` // directory, workbook or SQLite file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Format postgres"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Delimiter   string `yaml:"delimiter" mapstructure:"delimiter" validate:"max=1"`
}

// OutputConfig selects the backend output tables are written to.
type OutputConfig struct {
	Format      string `yaml:"format" mapstructure:"format" validate:"oneof=csv xlsx sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Format postgres"`
	IDLength    int    `yaml:"id_length" mapstructure:"id_length" validate:"gt=0"`
}

// AccessibilityConfig tunes the accessibility runner.
type AccessibilityConfig struct {
	Thresholds  []int `yaml:"thresholds" mapstructure:"thresholds" validate:"min=1,dive,gt=0"`
	StrictScale bool  `yaml:"strict_scale" mapstructure:"strict_scale"`
	Concurrency int   `yaml:"concurrency" mapstructure:"concurrency" validate:"gt=0,lte=64"`
}

// StoreConfig configures the run log.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	Path        string `yaml:"path" mapstructure:"path" validate:"required_if=Driver sqlite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Driver postgres"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("source.format", "csv")
	v.SetDefault("source.path", ".")
	v.SetDefault("source.database_url", "")
	v.SetDefault("source.schema", "public")
	v.SetDefault("source.delimiter", "")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.database_url", "")
	v.SetDefault("output.id_length", 15)
	v.SetDefault("accessibility.thresholds", []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60})
	v.SetDefault("accessibility.strict_scale", false)
	v.SetDefault("accessibility.concurrency", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "coa_runs.db")
	v.SetDefault("store.database_url", "")

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

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	for i := 1; i < len(c.Accessibility.Thresholds); i++ {
		if c.Accessibility.Thresholds[i] <= c.Accessibility.Thresholds[i-1] {
			problems = append(problems, "accessibility.thresholds must be strictly ascending")
			break
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// newValidator reports fields by their config key instead of their Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.section.key".
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", key, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", key, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}

// Manifest lists the inputs of one compute job.
type Manifest struct {
	TravelTimes []string `yaml:"travel_times" validate:"min=1,dive,required"`
	LandUse     []string `yaml:"land_use" validate:"min=1,dive,required"`
	Output      string   `yaml:"output" validate:"required"`
	Thresholds  []int    `yaml:"thresholds,omitempty" validate:"omitempty,dive,gt=0"`
}

// LoadManifest reads and validates a job manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "config: parse manifest %s", path)
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	if err := v.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, len(verrs))
			for i, fe := range verrs {
				problems[i] = describe(fe)
			}
			return nil, eris.Errorf("config: manifest %s: %s", path, strings.Join(problems, "; "))
		}
		return nil, eris.Wrapf(err, "config: validate manifest %s", path)
	}
	return &m, nil
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
