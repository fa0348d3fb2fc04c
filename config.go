package foxbox

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds defaults shared by the command line tools.
type Config struct {
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	TokenFile string `yaml:"token_file"`
}

// ConfigPath returns the path of the tool defaults file, ~/.foxbox.yaml, or
// $FOXBOX_CONFIG when set.
func ConfigPath() string {
	if path := os.Getenv("FOXBOX_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".foxbox.yaml")
}

// LoadConfig reads the tool defaults from path. A missing file is not an
// error and yields the zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, nil
	case err != nil:
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return cfg, nil
}
