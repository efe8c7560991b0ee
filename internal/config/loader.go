package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AST_INDEX"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load reads rootDir/.env (without overriding variables already set), then
// .ast-index/config.yml, then AST_INDEX_* variables, and validates the result.
func (l *loader) Load() (*Config, error) {
	if err := godotenv.Load(filepath.Join(l.rootDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, Dir))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKeys are bound explicitly so Unmarshal sees them even when the config
// file does not mention the key.
var envKeys = []string{
	"project_root",
	"index.path",
	"index.ignore",
	"index.use_gitignore",
	"index.max_file_size",
	"index.workers",
	"resolve.tie_break",
	"watch.debounce",
	"search.limit",
	"cache.root",
	"cache.max_age_days",
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("project_root", d.ProjectRoot)

	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.ignore", d.Index.Ignore)
	v.SetDefault("index.use_gitignore", d.Index.UseGitignore)
	v.SetDefault("index.max_file_size", d.Index.MaxFileSize)
	v.SetDefault("index.workers", d.Index.Workers)

	v.SetDefault("resolve.tie_break", d.Resolve.TieBreak)

	v.SetDefault("watch.debounce", d.Watch.Debounce)

	v.SetDefault("search.limit", d.Search.Limit)

	v.SetDefault("cache.root", d.Cache.Root)
	v.SetDefault("cache.max_age_days", d.Cache.MaxAgeDays)
}

// LoadConfigFromDir loads configuration for a project root.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
