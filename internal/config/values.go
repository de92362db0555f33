package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal is a YAML scalar read without going through float64, so 0.1 stays 0.1.
type Decimal struct {
	decimal.Decimal
	set bool
}

func decimalOf(v string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(v), set: true}
}

// IsSet reports whether a value was given, which tells an explicit 0 apart
// from a missing key.
func (d Decimal) IsSet() bool { return d.set }

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: decimal must be a scalar", value.Line)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" || value.Tag == "!!null" {
		d.Decimal = decimal.Zero
		d.set = false
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid decimal %q", value.Line, raw)
	}
	d.Decimal = v
	d.set = true
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Switch is an on/off option. YAML accepts on/off as well as booleans.
type Switch bool

func ParseSwitch(v string) (Switch, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch %q (want on or off)", v)
}

func (s *Switch) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: switch must be a scalar", value.Line)
	}
	v, err := ParseSwitch(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = v
	return nil
}

func (s Switch) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s Switch) String() string {
	if s {
		return "on"
	}
	return "off"
}
