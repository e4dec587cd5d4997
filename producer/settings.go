package producer

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings is the immutable producer configuration.
type Settings struct {
	Brokers  []string `koanf:"brokers"`
	ClientID string   `koanf:"client_id"`
	Driver   string   `koanf:"driver"`  // sarama|kgo
	Version  string   `koanf:"version"` // broker protocol version (sarama driver)

	Acks        int16 `koanf:"required_acks"` // 0,1,-1 (default -1, all ISR)
	MaxInFlight int   `koanf:"max_in_flight"` // open requests per connection
	Idempotent  bool  `koanf:"idempotent"`

	TLSEn    bool   `koanf:"tls_enabled"`
	SASLUser string `koanf:"sasl_user"`
	SASLPass string `koanf:"sasl_pass"`
}

// LoadSettings merges YAML (if present) with env-vars
// (prefix `KBRIDGE_PRODUCER__`, delimiter `__`).
func LoadSettings(path string) (Settings, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Settings{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Settings{}, fmt.Errorf("producer schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("KBRIDGE_PRODUCER__", "__", nil), nil)

	var set Settings
	if err := k.Unmarshal("", &set); err != nil {
		return set, err
	}
	// 0 is a legal explicit acks value, so default only when the key is
	// absent from both file and env.
	if !k.Exists("required_acks") {
		set.Acks = -1
	}
	applyDefaults(&set)
	return set, nil
}

func applyDefaults(s *Settings) {
	if s.Driver == "" {
		s.Driver = "sarama"
	}
	if s.MaxInFlight <= 0 {
		s.MaxInFlight = 5
	}
}

func (s Settings) validate() error {
	if len(s.Brokers) == 0 {
		return errors.New("producer: at least one broker must be set")
	}
	return nil
}
