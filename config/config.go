package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/moyu-x/file-organizer/internal"
)

type Config struct {
	Logging struct {
		Level string
		File  string
	}
	Organize struct {
		Dest     string
		Mode     string
		Rules    string
		Verify   bool
		Sniff    bool
		Progress bool
	}
}

// flagKeys binds command flags onto settings keys. Flags that are absent
// from the given set are skipped, so subcommands can share Load.
var flagKeys = map[string]string{
	"log-level": "logging.level",
	"log-file":  "logging.file",
	"dest":      "organize.dest",
	"config":    "organize.rules",
	"verify":    "organize.verify",
	"sniff":     "organize.sniff",
}

// Load reads settings from path, or from the default search locations when
// path is empty. A missing settings file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		path = expandHome(path)
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(expandHome(internal.DefaultSettingsDir))
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/file-organizer")
	}

	v.SetEnvPrefix("FILE_ORGANIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("organize.dest", internal.DefaultDestDir)
	v.SetDefault("organize.mode", string(internal.ModeMove))
	v.SetDefault("organize.rules", "")
	v.SetDefault("organize.verify", false)
	v.SetDefault("organize.sniff", false)
	v.SetDefault("organize.progress", true)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		if f := flags.Lookup("no-progress"); f != nil && f.Changed {
			v.Set("organize.progress", false)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Organize.Rules = expandHome(cfg.Organize.Rules)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	return &cfg, nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == '\\') {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
