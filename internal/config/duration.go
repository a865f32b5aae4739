package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration reads "30s"-style strings from both YAML values and env
// overrides. An empty value or "none" means zero, which callers treat as
// "disabled".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

// SetValue implements cleanenv's setter, used for env variables and
// env-default tags.
func (d *Duration) SetValue(s string) error { return d.set(s) }

func (d *Duration) set(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0, got %q", raw)
	}
	*d = Duration(v)
	return nil
}
