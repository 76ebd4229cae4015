// Package config loads pipedemux settings from defaults, an optional TOML
// file, PIPEDEMUX_* environment variables and command line flags, in rising
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pipedemux/internal/demux"
)

// Colour choices.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Presentation modes.
const (
	ModeColor = "color"
	ModeLabel = "label"
	ModePlain = "plain"
)

var (
	colorChoices = []string{ColorAuto, ColorAlways, ColorNever}
	modeChoices  = []string{ModeColor, ModeLabel, ModePlain}
)

// Config holds the settings of one pipedemux run.
type Config struct {
	Color      string `mapstructure:"color"`
	Mode       string `mapstructure:"mode"`
	PTY        bool   `mapstructure:"pty"`
	BufferSize int    `mapstructure:"buffer_size"`
	OutputLog  string `mapstructure:"output_log"`
	Verbose    bool   `mapstructure:"verbose"`
}

// flagNames maps config keys to the command line flags that override them.
var flagNames = map[string]string{
	"color":       "color",
	"mode":        "mode",
	"pty":         "pty",
	"buffer_size": "buffer-size",
	"output_log":  "output-log",
	"verbose":     "verbose",
}

// Path returns the config file location: $PIPEDEMUX_CONFIG, or
// ~/.config/pipedemux/config.toml.
func Path() string {
	if p := os.Getenv("PIPEDEMUX_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "pipedemux", "config.toml")
}

// Load reads configuration from file and env and applies the flags that
// were set explicitly. fs may be nil. A missing config file is not an error.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetDefault("color", ColorAuto)
	v.SetDefault("mode", ModeColor)
	v.SetDefault("pty", false)
	v.SetDefault("buffer_size", demux.DefaultBufferSize)
	v.SetDefault("output_log", "")
	v.SetDefault("verbose", false)

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("PIPEDEMUX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if flags != nil {
		for key, name := range flagNames {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Validate rejects unknown colour choices and modes and non-positive buffer sizes.
func (c Config) Validate() error {
	if !slices.Contains(colorChoices, c.Color) {
		return fmt.Errorf("invalid color %q: want one of %s", c.Color, strings.Join(colorChoices, ", "))
	}
	if !slices.Contains(modeChoices, c.Mode) {
		return fmt.Errorf("invalid mode %q: want one of %s", c.Mode, strings.Join(modeChoices, ", "))
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size %d: must be positive", c.BufferSize)
	}
	return nil
}
