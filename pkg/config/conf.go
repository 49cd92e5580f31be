package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mchmarny/triage/pkg/risk"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	overrideSeparator = "="
)

// ErrInvalidOverride is returned for weight overrides that can not be parsed.
var ErrInvalidOverride = errors.New("invalid weight override")

// Config is the persisted application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Workers  int            `yaml:"workers"`
	Format   string         `yaml:"format"`
	Weights  map[string]int `yaml:"weights,omitempty"`
}

// WeightsFile is the layout of a standalone risk weights file.
type WeightsFile struct {
	Weights map[string]int `yaml:"weights"`
}

func getDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Workers:  1,
		Format:   "csv",
	}
}

// Save writes the config into dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, ConfigFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
	}

	path := filepath.Join(dirPath, ConfigFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, getDefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := getDefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if c.Workers < 0 {
		return nil, fmt.Errorf("invalid workers value in %s: %d", path, c.Workers)
	}

	return c, nil
}

// LoadWeights reads a weights file. Both a bare `condition: weight` map and
// a document with a top-level `weights` key are accepted.
func LoadWeights(path string) (map[string]int, error) {
	if path == "" {
		return nil, errors.New("weights file path required")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading weights file %s: %w", path, err)
	}

	var wf WeightsFile
	if err := yaml.Unmarshal(b, &wf); err == nil && wf.Weights != nil {
		return wf.Weights, nil
	}

	var m map[string]int
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("error parsing weights file %s: %w", path, err)
	}
	if m == nil {
		m = map[string]int{}
	}
	return m, nil
}

// ParseOverrides parses `condition=weight` pairs. Weights must be whole
// numbers; the sign is validated later by the risk index.
func ParseOverrides(list []string) (map[string]int, error) {
	m := make(map[string]int, len(list))
	for _, item := range list {
		k, v, ok := strings.Cut(item, overrideSeparator)
		if !ok {
			return nil, fmt.Errorf("%w %q, expected condition=weight", ErrInvalidOverride, item)
		}
		key := risk.NormalizeCondition(k)
		if key == "" {
			return nil, fmt.Errorf("%w %q, condition required", ErrInvalidOverride, item)
		}
		w, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidOverride, item, err)
		}
		if w > risk.MaxSuggestedWeight {
			slog.Warn("weight above suggested range", "condition", key, "weight", w, "max", risk.MaxSuggestedWeight)
		}
		m[key] = w
	}
	return m, nil
}

// GetOrCreateHomeDir returns the app directory under the user home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
