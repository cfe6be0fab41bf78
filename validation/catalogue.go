package validation

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/rulecheck/errs"
)

//go:embed codes.yaml
var codesYAML []byte

// Code is one entry of the error catalogue.
type Code struct {
	Category    string    `yaml:"category"`
	Description string    `yaml:"description"`
	Info        string    `yaml:"info"`
	Help        string    `yaml:"help"`
	Kind        errs.Kind `yaml:"kind"`
}

// loadCatalogue is evaluated once per process; the map it returns is never
// written to afterwards.
var loadCatalogue = sync.OnceValues(func() (map[string]Code, error) {
	return ParseCatalogue(codesYAML)
})

// Catalogue returns the process-wide error catalogue.
// Callers must not modify the returned map.
func Catalogue() (map[string]Code, error) {
	return loadCatalogue()
}

// ParseCatalogue decodes a catalogue document: a YAML list of single-key maps
// that are merged into one map keyed by error name.
func ParseCatalogue(data []byte) (map[string]Code, error) {
	var entries []map[string]Code
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "error catalogue is not valid YAML", err)
	}

	codes := make(map[string]Code)
	for _, entry := range entries {
		for name, code := range entry {
			if _, dup := codes[name]; dup {
				return nil, errs.Configurationf("error catalogue defines %q more than once", name)
			}
			if statusFor(name) == "" {
				return nil, errs.Configurationf("error catalogue name %q must start with err- or warn-", name)
			}
			switch code.Kind {
			case errs.KindConfiguration, errs.KindData, errs.KindValidation:
			default:
				return nil, errs.Configurationf("error catalogue entry %q has unknown kind %q", name, code.Kind)
			}
			codes[name] = code
		}
	}

	return codes, nil
}

func statusFor(name string) Status {
	prefix, _, _ := strings.Cut(name, "-")
	switch prefix {
	case "err":
		return StatusError
	case "warn":
		return StatusWarning
	}
	return ""
}

func lookup(name string) (Code, error) {
	codes, err := Catalogue()
	if err != nil {
		return Code{}, fmt.Errorf("failed to load error catalogue: %w", err)
	}
	code, ok := codes[name]
	if !ok {
		return Code{}, errs.Configurationf("%s is not a known type of validation error", name)
	}
	return code, nil
}
