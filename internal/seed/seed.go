// Package seed reads the chart of accounts used to bootstrap a member.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sonrial/family-budget/internal/core"
)

//go:embed default_chart.yaml
var defaultChart []byte

type entry struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Scope string `yaml:"scope"`
}

// chartFile groups the templates by account kind.
type chartFile struct {
	Assets      []entry `yaml:"assets"`
	Liabilities []entry `yaml:"liabilities"`
	Expenses    []entry `yaml:"expenses"`
	Income      []entry `yaml:"income"`
}

// Parse decodes a chart. Entries without a scope are PERSONAL; a chart
// naming the same account twice in a scope is rejected.
func Parse(data []byte) ([]core.AccountTemplate, error) {
	var file chartFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	sections := []struct {
		kind    core.AccountKind
		entries []entry
	}{
		{core.AccountAsset, file.Assets},
		{core.AccountLiability, file.Liabilities},
		{core.AccountExpense, file.Expenses},
		{core.AccountIncome, file.Income},
	}

	var out []core.AccountTemplate
	seen := map[string]bool{}
	for _, sec := range sections {
		for i, e := range sec.entries {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				return nil, fmt.Errorf("%s entry %d: name is required", strings.ToLower(string(sec.kind)), i+1)
			}
			scope := core.ScopePersonal
			if strings.TrimSpace(e.Scope) != "" {
				var err error
				if scope, err = core.ParseScope(e.Scope); err != nil {
					return nil, fmt.Errorf("account %q: %w", name, err)
				}
			}
			key := string(scope) + "|" + string(sec.kind) + "|" + strings.ToLower(name)
			if seen[key] {
				return nil, fmt.Errorf("account %q listed twice", name)
			}
			seen[key] = true
			out = append(out, core.AccountTemplate{
				Name:  name,
				Label: strings.TrimSpace(e.Label),
				Kind:  sec.kind,
				Scope: scope,
			})
		}
	}
	return out, nil
}

// Default returns the built-in chart.
func Default() []core.AccountTemplate {
	chart, err := Parse(defaultChart)
	if err != nil {
		panic("seed: invalid default chart: " + err.Error())
	}
	return chart
}

// Load reads the chart at path, falling back to the built-in one when the
// file does not exist.
func Load(path string) ([]core.AccountTemplate, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Seed file not found, using the built-in chart", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}
