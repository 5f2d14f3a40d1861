package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/shmkv/pkg/shmstore"
	"github.com/calvinalkan/shmkv/pkg/shmstore/segment"
)

// Provider names accepted in config files and by --provider.
const (
	ProviderSysV = "sysv"
	ProviderFile = "file"
)

// ConfigFileName is the project config file looked up in the working
// directory.
const ConfigFileName = ".shmkv.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errKeyEmpty           = errors.New("key cannot be empty")
	errUnknownProvider    = errors.New("unknown provider")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Key      string `json:"key"`
	Capacity int    `json:"capacity"`
	Provider string `json:"provider"`
	Dir      string `json:"dir,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"`
	DirAbs       string `json:"-"` // absolute Dir, or the provider default

	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Key:      shmstore.DefaultKey,
		Capacity: shmstore.DefaultCapacity,
		Provider: ProviderSysV,
	}
}

// ConfigOverrides holds values given on the command line. Zero values and
// nil pointers mean "not set".
type ConfigOverrides struct {
	Key      *string
	Capacity int
	Provider string
	Dir      string
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       ConfigOverrides   // flag values
	Env             map[string]string // environment variables
}

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/shmkv/config.json if set, otherwise
// ~/.config/shmkv/config.json. Returns empty string if no home is known.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "shmkv", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "shmkv", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/shmkv/config.json)
// 3. Project config file (.shmkv.json) or the explicit --config file
// 4. CLI overrides.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalPath := getGlobalConfigPath(input.Env)
	if globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, globalCfg)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, ConfigFileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = applyOverrides(cfg, input.Overrides)

	err = validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	switch {
	case cfg.Dir == "" && cfg.Provider == ProviderFile:
		cfg.DirAbs = segment.DefaultDir()
	case cfg.Dir == "":
		cfg.DirAbs = os.TempDir()
	case filepath.IsAbs(cfg.Dir):
		cfg.DirAbs = cfg.Dir
	default:
		cfg.DirAbs = filepath.Join(workDir, cfg.Dir)
	}

	return cfg, nil
}

// partialConfig distinguishes absent fields from explicit zero values.
type partialConfig struct {
	Key      *string `json:"key"`
	Capacity *int    `json:"capacity"`
	Provider *string `json:"provider"`
	Dir      *string `json:"dir"`
}

// loadConfigFile loads a config file. If mustExist is false, a missing file
// is not an error and reports loaded == false.
func loadConfigFile(path string, mustExist bool) (partialConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return partialConfig{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return partialConfig{}, false, nil
		}

		return partialConfig{}, false, fmt.Errorf("%w %s: %w", errConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return partialConfig{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (partialConfig, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return partialConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg partialConfig

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return partialConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if cfg.Key != nil && *cfg.Key == "" {
		return partialConfig{}, errKeyEmpty
	}

	return cfg, nil
}

func mergeConfig(base Config, overlay partialConfig) Config {
	if overlay.Key != nil {
		base.Key = *overlay.Key
	}

	if overlay.Capacity != nil {
		base.Capacity = *overlay.Capacity
	}

	if overlay.Provider != nil {
		base.Provider = *overlay.Provider
	}

	if overlay.Dir != nil {
		base.Dir = *overlay.Dir
	}

	return base
}

func applyOverrides(cfg Config, o ConfigOverrides) Config {
	if o.Key != nil {
		cfg.Key = *o.Key
	}

	if o.Capacity != 0 {
		cfg.Capacity = o.Capacity
	}

	if o.Provider != "" {
		cfg.Provider = o.Provider
	}

	if o.Dir != "" {
		cfg.Dir = o.Dir
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.Key == "" {
		return errKeyEmpty
	}

	if cfg.Capacity <= shmstore.HeaderSize {
		return fmt.Errorf("capacity must be > %d, got %d", shmstore.HeaderSize, cfg.Capacity)
	}

	switch cfg.Provider {
	case ProviderSysV, ProviderFile:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", errUnknownProvider, cfg.Provider, ProviderSysV, ProviderFile)
	}

	return nil
}

// StoreOptions maps the resolved config to [shmstore.Options].
func (c Config) StoreOptions() shmstore.Options {
	var provider segment.Provider = segment.NewSysV()
	if c.Provider == ProviderFile {
		provider = segment.NewFile(c.DirAbs)
	}

	return shmstore.Options{
		Key:      c.Key,
		Capacity: c.Capacity,
		Provider: provider,
		LockDir:  c.DirAbs,
	}
}

// Format renders the serialized config fields as indented JSON.
func (c Config) Format() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

func formatCapacity(n int) string {
	const kib = 1024

	switch {
	case n%(kib*kib) == 0:
		return strconv.Itoa(n/(kib*kib)) + " MiB"
	case n%kib == 0:
		return strconv.Itoa(n/kib) + " KiB"
	default:
		return strconv.Itoa(n) + " B"
	}
}
