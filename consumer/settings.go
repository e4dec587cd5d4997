package consumer

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrNoTopics = errors.New("consumer: subscription needs at least one topic")

// Subscription is the non-empty topic set a stream fetches from.
type Subscription struct {
	Topics []string `koanf:"topics"`
}

func Subscribe(topics ...string) Subscription {
	return Subscription{Topics: topics}
}

func (s Subscription) Validate() error {
	if len(s.Topics) == 0 {
		return ErrNoTopics
	}
	for _, t := range s.Topics {
		if t == "" {
			return fmt.Errorf("%w (empty topic name)", ErrNoTopics)
		}
	}
	return nil
}

// Settings is the immutable per-session consumer configuration. Offset
// auto-commit is always disabled; only the commit engine moves group offsets.
type Settings struct {
	Brokers   []string `koanf:"brokers"`
	GroupID   string   `koanf:"group_id"`
	ClientID  string   `koanf:"client_id"`
	Driver    string   `koanf:"driver"`     // kgo|sarama
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`    // broker protocol version (sarama driver)

	PollTimeout    time.Duration `koanf:"poll_timeout"`
	MaxPollRecords int           `koanf:"max_poll_records"`

	TLSEn    bool   `koanf:"tls_enabled"`
	SASLUser string `koanf:"sasl_user"`
	SASLPass string `koanf:"sasl_pass"`
}

// LoadSettings merges YAML (if present) with env-vars
// (prefix `KBRIDGE_CONSUMER__`, delimiter `__`).
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
		return Settings{}, fmt.Errorf("consumer schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("KBRIDGE_CONSUMER__", "__", nil), nil)

	var set Settings
	if err := k.Unmarshal("", &set); err != nil {
		return set, err
	}
	applyDefaults(&set)
	return set, nil
}

func applyDefaults(s *Settings) {
	if s.Driver == "" {
		s.Driver = "kgo"
	}
	if s.StartFrom != "oldest" && s.StartFrom != "newest" {
		s.StartFrom = "newest"
	}
	if s.PollTimeout <= 0 {
		s.PollTimeout = 100 * time.Millisecond
	}
	if s.MaxPollRecords <= 0 {
		s.MaxPollRecords = 500
	}
}

func (s Settings) validate() error {
	if len(s.Brokers) == 0 {
		return errors.New("consumer: at least one broker must be set")
	}
	if s.GroupID == "" {
		return errors.New("consumer: group_id must be set")
	}
	return nil
}
