package drivers

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownEnumCode = errors.New("unknown enum code")

//go:embed enums.yaml
var defaultEnums []byte

type EnumTables struct {
	BatteryLevel map[string]int `yaml:"batteryLevel"`
	DeviceStatus map[string]int `yaml:"deviceStatus"`
}

// DefaultEnumTables returns the tables shipped with the binary.
func DefaultEnumTables() EnumTables {
	t, err := ParseEnumTables(defaultEnums)
	if err != nil {
		panic(fmt.Sprintf("embedded enum tables are invalid: %s", err.Error()))
	}
	return t
}

func LoadEnumTables(path string) (EnumTables, error) {
	if path == "" {
		return DefaultEnumTables(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return EnumTables{}, fmt.Errorf("failed to read enum tables from %s: %w", path, err)
	}

	return ParseEnumTables(b)
}

func ParseEnumTables(b []byte) (EnumTables, error) {
	t := EnumTables{}

	if err := yaml.Unmarshal(b, &t); err != nil {
		return EnumTables{}, fmt.Errorf("failed to parse enum tables: %w", err)
	}

	if len(t.BatteryLevel) == 0 || len(t.DeviceStatus) == 0 {
		return EnumTables{}, errors.New("enum tables must contain both batteryLevel and deviceStatus")
	}

	return t, nil
}

func (t EnumTables) Battery(code string) (int, error) {
	return lookup(t.BatteryLevel, "battery level", code)
}

func (t EnumTables) Status(code string) (int, error) {
	return lookup(t.DeviceStatus, "device status", code)
}

func lookup(table map[string]int, name, code string) (int, error) {
	if v, ok := table[code]; ok {
		return v, nil
	}

	for k, v := range table {
		if strings.EqualFold(k, code) {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: %s %q", ErrUnknownEnumCode, name, code)
}
