package config

import (
	"fmt"
	"strings"

	"gemini-desk/internal/core"
)

const (
	OptReserveAPIFees = "reserve_api_fees"
	OptMakerOrCancel  = "maker_or_cancel"
	OptDebug          = "debug"
)

// Options are the operator defaults applied to every new order.
type Options struct {
	ReserveAPIFees core.FeePolicy `yaml:"reserve_api_fees"`
	MakerOrCancel  Switch         `yaml:"maker_or_cancel"`
	Debug          Switch         `yaml:"debug"`
}

func DefaultOptions() Options {
	return Options{ReserveAPIFees: core.FeeMax}
}

func OptionNames() []string {
	return []string{OptReserveAPIFees, OptMakerOrCancel, OptDebug}
}

// AllowedValues lists the accepted values of an option, or nil for unknown names.
func AllowedValues(name string) []string {
	switch name {
	case OptReserveAPIFees:
		return []string{string(core.FeeNone), string(core.FeeActual), string(core.FeeMax)}
	case OptMakerOrCancel, OptDebug:
		return []string{"on", "off"}
	}
	return nil
}

func (o Options) Get(name string) (string, error) {
	switch name {
	case OptReserveAPIFees:
		return string(o.ReserveAPIFees), nil
	case OptMakerOrCancel:
		return o.MakerOrCancel.String(), nil
	case OptDebug:
		return o.Debug.String(), nil
	}
	return "", fmt.Errorf("unknown option %q", name)
}

// Set returns a copy of o with name set to value.
func (o Options) Set(name, value string) (Options, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.ToLower(strings.TrimSpace(value))
	switch name {
	case OptReserveAPIFees:
		p := core.FeePolicy(value)
		if !p.Valid() {
			return o, fmt.Errorf("invalid value %q for %s (want %s)", value, name, strings.Join(AllowedValues(name), ", "))
		}
		o.ReserveAPIFees = p
	case OptMakerOrCancel, OptDebug:
		if value != "on" && value != "off" {
			return o, fmt.Errorf("invalid value %q for %s (want on, off)", value, name)
		}
		on := Switch(value == "on")
		if name == OptMakerOrCancel {
			o.MakerOrCancel = on
		} else {
			o.Debug = on
		}
	default:
		return o, fmt.Errorf("unknown option %q", name)
	}
	return o, nil
}
