package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "PATTERND_"
)

// baseYAML carries defaults that cannot be expressed as zero-value checks.
var baseYAML = []byte(`
secrets:
  enabled: true
`)

// sections lists the top-level config keys. The env transformer uses it to
// find where the section name ends, since section and field names both
// contain underscores.
var sections = []string{
	"sources", "store", "report", "learning", "insights", "classifier",
	"monitor", "secrets", "logging", "telemetry", "notify",
}

// LoadWithFile resolves configuration from, lowest to highest precedence,
// built-in defaults, the YAML file at configPath and PATTERND_* variables.
//
// An empty configPath means ~/.config/patternd/config.yaml. A missing file
// is not an error. An existing file must sit in ~/.config/patternd,
// /etc/patternd or the working directory, be readable by its owner only
// (0600 or 0400), and be at most 1MB.
//
// Variables name a section and a field:
//
//	PATTERND_LEARNING_MIN_OCCURRENCES -> learning.min_occurrences
//	PATTERND_SOURCES_SOLUTIONS_PATH   -> sources.solutions_path
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		dir, err := userConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	layers := []struct {
		name string
		load func() error
	}{
		{"defaults", func() error { return k.Load(rawbytes.Provider(baseYAML), yaml.Parser()) }},
		{configPath, func() error {
			if content == nil {
				return nil
			}
			return k.Load(rawbytes.Provider(content), yaml.Parser())
		}},
		{"environment", func() error { return k.Load(env.Provider(envPrefix, ".", envKey), nil) }},
	}
	for _, l := range layers {
		if err := l.load(); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps PATTERND_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if field, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + field
		}
	}
	return key
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "patternd"), nil
}

// readConfigFile returns the file's content, or nil when it does not
// exist. Permissions and size are checked on the open descriptor so the
// file cannot be swapped between check and read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkConfigFile(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath rejects paths outside the allowed directories. It runs
// before the file is opened; symlinks are resolved when they exist.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	target := resolve(abs)

	userDir, err := userConfigDir()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{userDir, "/etc/patternd", cwd} {
		dir = resolve(dir)
		if target == dir || strings.HasPrefix(target, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return errors.New("config file must be in ~/.config/patternd/, /etc/patternd/ or the working directory")
}

func resolve(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	return path
}

func checkConfigFile(info fs.FileInfo) error {
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm != 0o600 && perm != 0o400 {
		return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
