package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatform/pkg/eventbus"
)

// AppConfig is the YAML configuration for the serve command. Flags override
// file values.
type AppConfig struct {
	Addr        string `yaml:"addr"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`

	// Bot selects the built-in demo bot: "echo" or "stream-echo".
	Bot string `yaml:"bot"`

	Examples      []string `yaml:"examples"`
	CacheExamples bool     `yaml:"cache_examples"`

	HistoryDB  string `yaml:"history_db"`
	ExamplesDB string `yaml:"examples_db"`

	IdleTimeoutSec int `yaml:"idle_timeout_sec"`

	Redis eventbus.Settings `yaml:"redis"`
}

func defaultConfig() AppConfig {
	return AppConfig{
		Addr:  ":8080",
		Title: "chatform demo",
		Bot:   "stream-echo",
	}
}

func loadConfig(path string) (AppConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	return cfg, nil
}
