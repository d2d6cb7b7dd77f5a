package storectl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL   = "http://localhost:8080"
	configFileName  = ".storectl.yaml"
	dataFileName    = "storectl.db"
	dataDirName     = ".storectl"
	defaultCartName = "local"
)

// Config is read from ~/.storectl.yaml. Flags override individual fields.
type Config struct {
	APIURL      string `yaml:"api_url"`
	DataFile    string `yaml:"data_file"`
	DatabaseURL string `yaml:"database_url"`
	Email       string `yaml:"email"`
	Cart        string `yaml:"cart"`
}

func defaultConfig(home string) Config {
	return Config{
		APIURL:   defaultAPIURL,
		DataFile: filepath.Join(home, dataDirName, dataFileName),
		Cart:     defaultCartName,
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(home, configFileName)
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg := defaultConfig(home)

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Cart == "" {
		cfg.Cart = defaultCartName
	}
	return cfg, nil
}
