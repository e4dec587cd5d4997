package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const SupportedSchema = "v1"

// File is the parsed bridge definition: one consumer source, one sink.
type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Config string   `yaml:"config"` // consumer settings YAML
		Topics []string `yaml:"topics"`
	} `yaml:"source"`

	Sink struct {
		Kind   string `yaml:"kind"`   // kafka|stdout
		Config string `yaml:"config"` // producer settings YAML (kafka sink)
		Topic  string `yaml:"topic"`  // destination topic (kafka sink)
	} `yaml:"sink"`

	MetricsPort int `yaml:"metrics_port"`

	Debug struct {
		PerRecordDelayMS int  `yaml:"per_record_delay_ms"`
		PrintCounter     bool `yaml:"print_counter"`
		PrintValue       bool `yaml:"print_value"`
		ValueMaxBytes    int  `yaml:"value_max_bytes"`
	} `yaml:"debug"`
}

// LoadBridgeSpec parses a bridge YAML, validates schema_version, and resolves
// the referenced settings files relative to it.
func LoadBridgeSpec(path string) (File, error) {
	var cfg File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("bridge schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = "kafka"
	}
	dir := filepath.Dir(path)
	if cfg.Source.Config != "" && !filepath.IsAbs(cfg.Source.Config) {
		cfg.Source.Config = filepath.Join(dir, cfg.Source.Config)
	}
	if cfg.Sink.Config != "" && !filepath.IsAbs(cfg.Sink.Config) {
		cfg.Sink.Config = filepath.Join(dir, cfg.Sink.Config)
	}
	return cfg, nil
}
