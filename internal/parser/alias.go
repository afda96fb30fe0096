package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrEmptyAlias     = errors.New("alias table: empty name or variant")
	ErrDuplicateAlias = errors.New("alias table: duplicate canonical name")
	ErrAliasConflict  = errors.New("alias table: canonical name claimed by an earlier entry")
)

// Alias lists the substrings that identify one canonical product name.
type Alias struct {
	Name     string   `json:"name"`
	Variants []string `json:"aliases"`
}

// AliasTable maps raw product spellings to canonical names. Entries are
// matched in order, first hit wins. A table is never modified after
// NewAliasTable returns, so one value can serve any number of goroutines.
type AliasTable struct {
	entries []Alias
}

var defaultAliases = []Alias{
	{Name: "面包", Variants: []string{"面包"}},
	{Name: "甜酒", Variants: []string{"甜酒"}},
	{Name: "小青柑", Variants: []string{"小青柑", "青柑"}},
	{Name: "巨峰", Variants: []string{"巨峰"}},
	{Name: "豆腐", Variants: []string{"豆腐"}},
}

// DefaultAliasTable returns the built-in product table.
func DefaultAliasTable() *AliasTable {
	t, err := NewAliasTable(defaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

// NewAliasTable copies entries into a validated table. Every canonical name
// is added to its own variants, and each canonical name must normalize to
// itself, which keeps Normalize idempotent.
func NewAliasTable(entries []Alias) (*AliasTable, error) {
	t := &AliasTable{entries: make([]Alias, 0, len(entries))}
	seen := map[string]struct{}{}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, ErrEmptyAlias
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAlias, name)
		}
		seen[name] = struct{}{}

		variants := []string{name}
		for _, v := range e.Variants {
			v = strings.TrimSpace(v)
			if v == "" {
				return nil, fmt.Errorf("%w: variant of %s", ErrEmptyAlias, name)
			}
			if v != name {
				variants = append(variants, v)
			}
		}
		t.entries = append(t.entries, Alias{Name: name, Variants: variants})
	}

	for _, e := range t.entries {
		if got := t.Normalize(e.Name); got != e.Name {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrAliasConflict, e.Name, got)
		}
	}
	return t, nil
}

// LoadAliasTable reads a JSON array of {"name": ..., "aliases": [...]}.
func LoadAliasTable(path string) (*AliasTable, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Alias
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("decode alias file %s: %w", path, err)
	}
	return NewAliasTable(entries)
}

// Normalize maps a raw product token to its canonical name. Unknown names
// come back trimmed but otherwise unchanged.
func (t *AliasTable) Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	for _, e := range t.entries {
		for _, v := range e.Variants {
			if strings.Contains(name, v) {
				return e.Name
			}
		}
	}
	return name
}

// Entries returns a copy of the table in match order.
func (t *AliasTable) Entries() []Alias {
	out := make([]Alias, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, Alias{Name: e.Name, Variants: append([]string(nil), e.Variants...)})
	}
	return out
}
