package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/gemini"
	"github.com/lowaak/cyciot/cyciot-app/internal/speech"
)

const (
	EnvPrefix      = "CYCIOT"
	DefaultDirName = ".cyciot"
)

type DeviceConfig struct {
	Name               string        `mapstructure:"name"`
	ServiceUUID        string        `mapstructure:"service_uuid"`
	CharacteristicUUID string        `mapstructure:"characteristic_uuid"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ScanTimeout        time.Duration `mapstructure:"scan_timeout"`
}

type MockConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Port     int           `mapstructure:"port"`
	Interval time.Duration `mapstructure:"interval"`
}

type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AnalysisConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
	Rebuild  string        `mapstructure:"rebuild"`
}

type SpeechConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
	Args    string `mapstructure:"args"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Mock     MockConfig     `mapstructure:"mock"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Log      LogConfig      `mapstructure:"log"`
}

// RebuildPolicy is the parsed analysis.rebuild value. Load has already
// validated it.
func (c Config) RebuildPolicy() coach.RebuildPolicy {
	p, _ := coach.ParseRebuildPolicy(c.Analysis.Rebuild)
	return p
}

// SpeechArgs splits speech.args on whitespace
func (c Config) SpeechArgs() []string {
	return strings.Fields(c.Speech.Args)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.name", "SensorBLE")
	v.SetDefault("device.service_uuid", "4fafc201-1fb5-459e-8fcc-c5c9c331914b")
	v.SetDefault("device.characteristic_uuid", "beb5483e-36e1-4688-b7f5-ea07361b26a8")
	v.SetDefault("device.connect_timeout", 10*time.Second)
	v.SetDefault("device.scan_timeout", 10*time.Second)

	v.SetDefault("mock.enabled", false)
	v.SetDefault("mock.port", 8099)
	v.SetDefault("mock.interval", time.Second)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", gemini.DefaultModel)
	v.SetDefault("gemini.base_url", gemini.DefaultBaseURL)

	v.SetDefault("analysis.timeout", coach.DefaultAnalysisTimeout)
	v.SetDefault("analysis.language", coach.DefaultLanguage)
	v.SetDefault("analysis.rebuild", coach.RebuildFromFresh.String())

	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.command", speech.DefaultCommand)
	v.SetDefault("speech.args", "-v "+speech.DefaultLocale)

	v.SetDefault("log.file", filepath.Join(DefaultDirName, "cyciot.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cyciot", pflag.ContinueOnError)
	fs.String("config", "", "config file (default ~/.cyciot/config.yaml)")
	fs.String("env-file", ".env", "dotenv file to load before reading the environment")
	fs.String("device-name", "", "advertised name of the sensor peripheral")
	fs.Bool("mock", false, "use the simulated sensor instead of Bluetooth")
	fs.Int("mock-port", 0, "port of the simulated sensor control page")
	fs.String("model", "", "Gemini model name")
	fs.String("language", "", "language of the coaching feedback")
	fs.String("rebuild", "", "window rebuild policy after replenishment (fresh|window-tail)")
	fs.Duration("analysis-timeout", 0, "upper bound for one analysis call")
	fs.Bool("speech", true, "speak coaching feedback aloud")
	fs.String("log-file", "", "rotating log file path")
	return fs
}

var flagKeys = map[string]string{
	"device-name":      "device.name",
	"mock":             "mock.enabled",
	"mock-port":        "mock.port",
	"model":            "gemini.model",
	"language":         "analysis.language",
	"rebuild":          "analysis.rebuild",
	"analysis-timeout": "analysis.timeout",
	"speech":           "speech.enabled",
	"log-file":         "log.file",
}

// Load resolves the configuration from defaults, the config file, the dotenv
// file, CYCIOT_* environment variables and finally args, each overriding the
// previous.
func Load(args []string) (Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		// existing environment variables win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, err
	}

	for name, key := range flagKeys {
		// only flags set on the command line override the other sources
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, err
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, flags *pflag.FlagSet) error {
	path, _ := flags.GetString("config")
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, DefaultDirName, "config.yaml")
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := coach.ParseRebuildPolicy(c.Analysis.Rebuild); err != nil {
		return err
	}
	if c.Device.Name == "" {
		return errors.New("device.name must not be empty")
	}
	if c.Mock.Enabled && (c.Mock.Port <= 0 || c.Mock.Port > 65535) {
		return fmt.Errorf("mock.port %d out of range", c.Mock.Port)
	}
	if c.Mock.Interval <= 0 {
		return fmt.Errorf("mock.interval must be positive, got %v", c.Mock.Interval)
	}
	return nil
}
