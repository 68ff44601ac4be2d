package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is an optional YAML file pre-loading the owner's registries at
// startup: source channels to watch, the message pool and the timer policy.
// Accounts are never seeded; onboarding is always interactive.
type Seed struct {
	SourceChannels []string `yaml:"source_channels"`
	Messages       []string `yaml:"messages"`
	Timer          struct {
		Mode            string `yaml:"mode"`
		IntervalMinutes int    `yaml:"interval_minutes"`
	} `yaml:"timer"`
}

// LoadSeed parses a seed file. Returns nil without error when path is empty.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}
