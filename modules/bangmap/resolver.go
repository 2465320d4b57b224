package bangmap

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed provinces.yaml
var provinceTableYAML []byte

// provinceTable is the immutable alias table loaded from provinces.yaml.
type provinceTable struct {
	ShortNames map[string]string `yaml:"short_names"`
	SingleChar map[string]string `yaml:"single_char"`

	canonical map[string]struct{}
	sorted    []string
}

var provinces = mustLoadProvinceTable(provinceTableYAML)

func mustLoadProvinceTable(raw []byte) *provinceTable {
	table, err := loadProvinceTable(raw)
	if err != nil {
		panic(fmt.Sprintf("bangmap: %v", err))
	}

	return table
}

func loadProvinceTable(raw []byte) (*provinceTable, error) {
	table := &provinceTable{}
	if err := yaml.Unmarshal(raw, table); err != nil {
		return nil, fmt.Errorf("parse province table: %w", err)
	}
	if len(table.ShortNames) == 0 {
		return nil, fmt.Errorf("parse province table: no short names")
	}

	table.canonical = make(map[string]struct{}, len(table.ShortNames))
	for _, canonical := range table.ShortNames {
		if canonical == "" {
			return nil, fmt.Errorf("parse province table: empty canonical name")
		}
		if _, seen := table.canonical[canonical]; !seen {
			table.canonical[canonical] = struct{}{}
			table.sorted = append(table.sorted, canonical)
		}
	}
	slices.Sort(table.sorted)

	for alias, canonical := range table.SingleChar {
		if _, ok := table.canonical[canonical]; !ok {
			return nil, fmt.Errorf("parse province table: alias %q maps to unknown province %q", alias, canonical)
		}
	}

	return table, nil
}

// resolve applies the lookup order: canonical name, short name, single character.
func (t *provinceTable) resolve(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if _, ok := t.canonical[input]; ok {
		return input
	}
	if canonical, ok := t.ShortNames[input]; ok {
		return canonical
	}
	if canonical, ok := t.SingleChar[input]; ok {
		return canonical
	}

	return ""
}

// ResolveProvince maps a province name, short name, or one-character
// abbreviation to its canonical name. It returns "" when input is not recognized.
//
// Matching is exact after trimming surrounding whitespace.
func ResolveProvince(input string) string {
	return provinces.resolve(input)
}

// Provinces returns every canonical province name in sorted order.
func Provinces() []string {
	return slices.Clone(provinces.sorted)
}
