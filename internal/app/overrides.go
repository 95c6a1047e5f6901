package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pztrick/television/internal/binding"
	"github.com/pztrick/television/internal/domain"
)

// BindingOverride replaces parts of a built-in binding declaration. Unset keys keep the default.
type BindingOverride struct {
	Fields      []string `toml:"fields"`
	NoFields    bool     `toml:"no_fields"`
	Exclude     []string `toml:"exclude"`
	SendMembers []string `toml:"send_members"`
	Stream      string   `toml:"stream"`
}

// Overrides is the decoded bindings file, keyed by model label.
//
//	[bindings."core.task"]
//	fields = ["title", "done"]
//	send_members = ["summary"]
type Overrides struct {
	Bindings map[string]BindingOverride `toml:"bindings"`
}

// LoadBindingOverrides reads the TOML file at path. An empty path yields no overrides.
func LoadBindingOverrides(path string) (Overrides, error) {
	var o Overrides
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read bindings file: %w", err)
	}
	return ParseBindingOverrides(string(data))
}

// ParseBindingOverrides decodes overrides from TOML text. Unknown keys are rejected.
func ParseBindingOverrides(text string) (Overrides, error) {
	var o Overrides
	md, err := toml.Decode(text, &o)
	if err != nil {
		return Overrides{}, fmt.Errorf("decode bindings file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Overrides{}, fmt.Errorf("bindings file: unknown keys %s", strings.Join(keys, ", "))
	}
	for model, b := range o.Bindings {
		if b.NoFields && len(b.Fields) > 0 {
			return Overrides{}, fmt.Errorf("bindings file: %s sets both fields and no_fields", model)
		}
	}
	return o, nil
}

// unused returns the override keys that name no registered model.
func (o Overrides) unused(models []string) []string {
	known := make(map[string]bool, len(models))
	for _, m := range models {
		known[m] = true
	}
	var out []string
	for model := range o.Bindings {
		if !known[model] {
			out = append(out, model)
		}
	}
	return out
}

var errUnknownModel = errors.New("bindings file names an unknown model")

func applyOverride[T any](spec *binding.Spec[T], o Overrides) {
	b, ok := o.Bindings[spec.Model]
	if !ok {
		return
	}
	if b.Fields != nil || b.NoFields {
		spec.Fields = binding.ParseFields(b.Fields, b.NoFields)
	}
	if b.Exclude != nil {
		spec.Exclude = b.Exclude
	}
	if b.SendMembers != nil {
		spec.SendMembers = b.SendMembers
	}
	if b.Stream != "" {
		spec.Stream = domain.Channel(b.Stream)
	}
}
