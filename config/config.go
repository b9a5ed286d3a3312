// vidconv/config/config.go
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin             string        `mapstructure:"FF_BIN"`
	FFProbeBin        string        `mapstructure:"FFPROBE_BIN"`
	FFTimeout         time.Duration `mapstructure:"FF_TIMEOUT"`
	OutputDir         string        `mapstructure:"OUTPUT_DIR"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	PresetsFile       string        `mapstructure:"PRESETS_FILE"`
	WatchDir          string        `mapstructure:"WATCH_DIR"`
	ProbeConcurrency  int           `mapstructure:"PROBE_CONCURRENCY"`
	MaxConcurrency    int           `mapstructure:"MAX_CONCURRENCY"`
	DurationTolerance float64       `mapstructure:"DURATION_TOLERANCE"`
	Quality           int           `mapstructure:"QUALITY"`
	MaxInputSize      int64         `mapstructure:"MAX_INPUT_SIZE"`
	ThrottleCPU       float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem   int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk  int64         `mapstructure:"THROTTLE_FREEDISK"`
	HistoryRetention  time.Duration `mapstructure:"HISTORY_RETENTION"`
	AuthEnable        bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey           string        `mapstructure:"AUTH_KEY"`
	Port              string        `mapstructure:"PORT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogFormat         string        `mapstructure:"LOG_FORMAT"`
}

// HistoryPath is the sqlite database holding finished job records.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// LockPath guards DataDir against a second server instance.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "vidconv.lock")
}

// EnsureDirectories creates the data directory if needed.
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(c.DataDir, 0o755)
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

// Load reads configuration from defaults, the optional config file and the
// environment. An explicit file path, when given, replaces the search paths.
func Load(file ...string) (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FF_BIN", "")
	vp.SetDefault("FFPROBE_BIN", "")
	vp.SetDefault("FF_TIMEOUT", "6h")
	vp.SetDefault("OUTPUT_DIR", "")
	vp.SetDefault("DATA_DIR", "")
	vp.SetDefault("PRESETS_FILE", "")
	vp.SetDefault("WATCH_DIR", "")
	vp.SetDefault("PROBE_CONCURRENCY", 4)
	vp.SetDefault("MAX_CONCURRENCY", 1)
	vp.SetDefault("DURATION_TOLERANCE", 1.0)
	vp.SetDefault("QUALITY", 0)
	vp.SetDefault("MAX_INPUT_SIZE", "0B")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "1GB")
	vp.SetDefault("HISTORY_RETENTION", "720h")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "console")

	if len(file) > 0 && file[0] != "" {
		vp.SetConfigFile(file[0])
	} else {
		vp.SetConfigName("vidconv_config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/vidconv/")
	}

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("VIDCONV")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts the value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	cfg.applyFallbacks()
	return &cfg, nil
}

// applyFallbacks fills values that depend on the host rather than on fixed defaults.
func (c *Config) applyFallbacks() {
	if c.OutputDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.OutputDir = filepath.Join(home, "Videos", "VidConv")
		}
	}
	if c.DataDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.DataDir = filepath.Join(dir, "vidconv")
		} else {
			c.DataDir = ".vidconv"
		}
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = 4
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.DurationTolerance <= 0 {
		c.DurationTolerance = 1.0
	}
}
